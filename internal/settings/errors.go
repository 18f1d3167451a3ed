package settings

import "errors"

var (
	// ErrDecode is returned when a persisted record cannot be read at all.
	ErrDecode = errors.New("settings: malformed record")

	// ErrNoRecord is returned by a store that has nothing saved yet.
	ErrNoRecord = errors.New("settings: no record saved")
)
