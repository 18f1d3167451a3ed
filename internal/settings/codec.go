// Package settings converts coordinator settings to and from their persisted
// form and fans saves out to the configured sinks.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"sbzdeck/internal/profile"
)

// Record is the persisted representation.
type Record struct {
	SelectedParameters map[string][]string `json:"selected_parameters"`
	Profiles           ProfilesRecord      `json:"profiles"`
}

// ProfilesRecord holds one ProfileRecord per output.
type ProfilesRecord struct {
	Headphones ProfileRecord `json:"headphones"`
	Speakers   ProfileRecord `json:"speakers"`
}

// ProfileRecord is a profile with plain JSON values.
type ProfileRecord struct {
	Volume     *float32                  `json:"volume"`
	Parameters map[string]map[string]any `json:"parameters"`
}

// Encode converts settings to a record. Values that are neither integers, bools nor
// finite floats are left out, and a non-finite volume is written as null.
func Encode(s profile.Settings) Record {
	return Record{
		SelectedParameters: s.Selection.Lists(),
		Profiles: ProfilesRecord{
			Headphones: encodeProfile(s.Headphones),
			Speakers:   encodeProfile(s.Speakers),
		},
	}
}

func encodeProfile(p profile.Profile) ProfileRecord {
	out := ProfileRecord{Parameters: make(map[string]map[string]any, len(p.Parameters))}
	if p.Volume != nil && finite(*p.Volume) {
		v := *p.Volume
		out.Volume = &v
	}
	for feature, params := range p.Parameters {
		inner := make(map[string]any, len(params))
		for name, v := range params {
			if v.Persistable() {
				inner[name] = v.Interface()
			}
		}
		out.Parameters[feature] = inner
	}
	return out
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Marshal encodes settings straight to JSON.
func Marshal(s profile.Settings) ([]byte, error) {
	data, err := json.Marshal(Encode(s))
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}
	return data, nil
}

// IsBlank reports whether raw holds no record at all: empty input, null or an
// empty object, which is what a fresh Stream Deck install returns.
func IsBlank(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return false
	}
	return len(top) == 0
}

// Decode reads a persisted record. Entries that cannot be represented are dropped and
// listed in the returned paths; only a record that is not a JSON object fails. Empty
// input and null decode to empty settings.
func Decode(raw []byte) (profile.Settings, []string, error) {
	settings := profile.Settings{
		Selection:  make(profile.Selection),
		Headphones: profile.Profile{Parameters: make(profile.Parameters)},
		Speakers:   profile.Profile{Parameters: make(profile.Parameters)},
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return settings, nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var top map[string]any
	if err := dec.Decode(&top); err != nil {
		return profile.Settings{}, nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	d := &decoder{}

	selection, ok := top["selected_parameters"]
	if !ok {
		selection = top["selectedParameters"]
	}
	settings.Selection = d.selection(selection)

	if profiles, ok := d.object("profiles", top["profiles"]); ok {
		settings.Headphones = d.profile("profiles.headphones", profiles["headphones"])
		settings.Speakers = d.profile("profiles.speakers", profiles["speakers"])
	}

	sort.Strings(d.dropped)
	return settings, d.dropped, nil
}

type decoder struct {
	dropped []string
}

func (d *decoder) drop(path string) {
	d.dropped = append(d.dropped, path)
}

// object treats a missing or null field as absent without recording a drop.
func (d *decoder) object(path string, v any) (map[string]any, bool) {
	if v == nil {
		return nil, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		d.drop(path)
	}
	return m, ok
}

func (d *decoder) selection(v any) profile.Selection {
	out := make(profile.Selection)
	features, ok := d.object("selected_parameters", v)
	if !ok {
		return out
	}
	for feature, raw := range features {
		path := "selected_parameters." + feature
		names, ok := raw.([]any)
		if !ok {
			d.drop(path)
			continue
		}
		set := make(map[string]struct{}, len(names))
		for i, n := range names {
			name, ok := n.(string)
			if !ok {
				d.drop(fmt.Sprintf("%s[%d]", path, i))
				continue
			}
			set[name] = struct{}{}
		}
		out[feature] = set
	}
	return out
}

func (d *decoder) profile(path string, v any) profile.Profile {
	out := profile.Profile{Parameters: make(profile.Parameters)}
	fields, ok := d.object(path, v)
	if !ok {
		return out
	}

	switch vol := fields["volume"].(type) {
	case nil:
	case json.Number:
		f, err := vol.Float64()
		if err != nil {
			d.drop(path + ".volume")
			break
		}
		v := float32(f)
		out.Volume = &v
	default:
		d.drop(path + ".volume")
	}

	features, ok := d.object(path+".parameters", fields["parameters"])
	if !ok {
		return out
	}
	for feature, raw := range features {
		fpath := path + ".parameters." + feature
		params, ok := d.object(fpath, raw)
		if !ok {
			continue
		}
		inner := make(map[string]profile.Value, len(params))
		for name, pv := range params {
			value, ok := decodeValue(pv)
			if !ok {
				d.drop(fpath + "." + name)
				continue
			}
			inner[name] = value
		}
		out.Parameters[feature] = inner
	}
	return out
}

func decodeValue(v any) (profile.Value, bool) {
	switch x := v.(type) {
	case json.Number:
		return profile.ClassifyNumber(x.String())
	case bool:
		return profile.Bool(x), true
	default:
		return profile.Value{}, false
	}
}
