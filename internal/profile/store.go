package profile

// Store holds the two output profiles and the selection. It is not safe for
// concurrent use; the coordinator owns it exclusively.
type Store struct {
	profiles  [2]Profile
	selection Selection
}

// NewStore returns a store with empty profiles and an empty selection.
func NewStore() *Store {
	s := &Store{selection: make(Selection)}
	for i := range s.profiles {
		s.profiles[i] = Profile{Parameters: make(Parameters)}
	}
	return s
}

// NewStoreFrom seeds a store from persisted settings.
func NewStoreFrom(settings Settings) *Store {
	s := NewStore()
	s.Replace(settings)
	return s
}

func (s *Store) slot(o Output) *Profile {
	if o == Speakers {
		return &s.profiles[1]
	}
	return &s.profiles[0]
}

// Get returns a copy of the profile stored for an output.
func (s *Store) Get(o Output) Profile {
	return s.slot(o).Clone()
}

// Set replaces the profile stored for an output.
func (s *Store) Set(o Output, p Profile) {
	*s.slot(o) = p.Clone()
}

// MergeObserved upserts one observed value into an output's profile.
func (s *Store) MergeObserved(o Output, feature, parameter string, v Value) {
	slot := s.slot(o)
	if slot.Parameters == nil {
		slot.Parameters = make(Parameters)
	}
	slot.Parameters.Set(feature, parameter, v)
}

// SetVolume records the volume for an output.
func (s *Store) SetVolume(o Output, volume float32) {
	s.slot(o).Volume = &volume
}

// Selection returns a copy of the current selection.
func (s *Store) Selection() Selection {
	return s.selection.Clone()
}

// SetSelection replaces the selection and reports whether it changed.
func (s *Store) SetSelection(sel Selection) bool {
	if s.selection.Equal(sel) {
		return false
	}
	s.selection = sel.Clone()
	return true
}

// Replace swaps profiles and selection wholesale.
func (s *Store) Replace(settings Settings) {
	s.selection = settings.Selection.Clone()
	s.Set(Headphones, settings.Headphones)
	s.Set(Speakers, settings.Speakers)
}

// Settings returns a deep copy of everything the store holds.
func (s *Store) Settings() Settings {
	return Settings{
		Selection:  s.selection.Clone(),
		Headphones: s.Get(Headphones),
		Speakers:   s.Get(Speakers),
	}
}
