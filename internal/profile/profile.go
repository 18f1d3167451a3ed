package profile

import "sort"

// Parameters maps feature name to parameter name to value.
type Parameters map[string]map[string]Value

// Get returns a single value.
func (p Parameters) Get(feature, parameter string) (Value, bool) {
	params, ok := p[feature]
	if !ok {
		return Value{}, false
	}
	v, ok := params[parameter]
	return v, ok
}

// Set upserts a single value, creating the feature map when needed.
func (p Parameters) Set(feature, parameter string, v Value) {
	params, ok := p[feature]
	if !ok {
		params = make(map[string]Value)
		p[feature] = params
	}
	params[parameter] = v
}

// Clone returns a deep copy. A nil receiver yields an empty map.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for feature, params := range p {
		inner := make(map[string]Value, len(params))
		for name, v := range params {
			inner[name] = v
		}
		out[feature] = inner
	}
	return out
}

// Equal compares two parameter maps value by value.
func (p Parameters) Equal(o Parameters) bool {
	if len(p) != len(o) {
		return false
	}
	for feature, params := range p {
		other, ok := o[feature]
		if !ok || len(other) != len(params) {
			return false
		}
		for name, v := range params {
			ov, ok := other[name]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
	}
	return true
}

// Profile is the remembered state of one output.
type Profile struct {
	Volume     *float32
	Parameters Parameters
}

// Clone returns a deep copy of the profile.
func (p Profile) Clone() Profile {
	out := Profile{Parameters: p.Parameters.Clone()}
	if p.Volume != nil {
		v := *p.Volume
		out.Volume = &v
	}
	return out
}

// Equal compares volume and parameters.
func (p Profile) Equal(o Profile) bool {
	switch {
	case p.Volume == nil && o.Volume != nil, p.Volume != nil && o.Volume == nil:
		return false
	case p.Volume != nil && *p.Volume != *o.Volume:
		return false
	}
	return p.Parameters.Equal(o.Parameters)
}

// Selection maps feature name to the set of parameter names carried across switches.
type Selection map[string]map[string]struct{}

// NewSelection builds a selection from feature -> parameter lists.
func NewSelection(m map[string][]string) Selection {
	s := make(Selection, len(m))
	for feature, params := range m {
		set := make(map[string]struct{}, len(params))
		for _, p := range params {
			set[p] = struct{}{}
		}
		s[feature] = set
	}
	return s
}

// Contains reports whether the parameter is selected.
func (s Selection) Contains(feature, parameter string) bool {
	_, ok := s[feature][parameter]
	return ok
}

// Add selects a parameter.
func (s Selection) Add(feature, parameter string) {
	set, ok := s[feature]
	if !ok {
		set = make(map[string]struct{})
		s[feature] = set
	}
	set[parameter] = struct{}{}
}

// Clone returns a deep copy. A nil receiver yields an empty selection.
func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	for feature, set := range s {
		inner := make(map[string]struct{}, len(set))
		for name := range set {
			inner[name] = struct{}{}
		}
		out[feature] = inner
	}
	return out
}

// Equal compares two selections. Features with an empty parameter set are significant.
func (s Selection) Equal(o Selection) bool {
	if len(s) != len(o) {
		return false
	}
	for feature, set := range s {
		other, ok := o[feature]
		if !ok || len(other) != len(set) {
			return false
		}
		for name := range set {
			if _, ok := other[name]; !ok {
				return false
			}
		}
	}
	return true
}

// Lists returns the selection as sorted parameter lists keyed by feature.
func (s Selection) Lists() map[string][]string {
	out := make(map[string][]string, len(s))
	for feature, set := range s {
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)
		out[feature] = names
	}
	return out
}

// Intersect keeps only the feature/parameter names present in available. Features the
// caller listed stay present even when none of their parameters survive.
func (s Selection) Intersect(available Parameters) Selection {
	out := make(Selection)
	for feature, set := range s {
		params, ok := available[feature]
		if !ok {
			continue
		}
		inner := make(map[string]struct{})
		for name := range set {
			if _, ok := params[name]; ok {
				inner[name] = struct{}{}
			}
		}
		out[feature] = inner
	}
	return out
}

// Settings is the persisted part of the coordinator state.
type Settings struct {
	Selection  Selection
	Headphones Profile
	Speakers   Profile
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	return Settings{
		Selection:  s.Selection.Clone(),
		Headphones: s.Headphones.Clone(),
		Speakers:   s.Speakers.Clone(),
	}
}

// Profile returns the profile stored for an output.
func (s Settings) Profile(o Output) Profile {
	if o == Speakers {
		return s.Speakers
	}
	return s.Headphones
}
