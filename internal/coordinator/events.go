package coordinator

import (
	"encoding/json"

	"sbzdeck/internal/profile"
)

// Event is one input to the coordinator, from the control protocol or the device.
type Event interface {
	isEvent()
}

// ButtonAppeared registers a displayed button instance.
type ButtonAppeared struct {
	Context string
	State   uint8
}

// ButtonDisappeared unregisters a button instance.
type ButtonDisappeared struct {
	Context string
}

// ButtonPressed requests a switch. DesiredState, when set, overrides toggling State.
type ButtonPressed struct {
	Context      string
	State        *uint8
	DesiredState *uint8
}

// HardwareSelectorChanged reports a new selector value from the device.
type HardwareSelectorChanged struct {
	Value profile.Value
}

// HardwareParameterChanged reports a parameter change made outside the plugin.
type HardwareParameterChanged struct {
	Feature   string
	Parameter string
	Value     profile.Value
}

// HardwareVolumeChanged reports an endpoint volume change.
type HardwareVolumeChanged struct {
	Volume float32
	Muted  bool
}

// SettingsLoaded replaces profiles and selection from a persisted record.
type SettingsLoaded struct {
	Raw    json.RawMessage
	Source string
}

// FeatureQuery asks for the selectable parameters on behalf of a property inspector.
type FeatureQuery struct {
	Action  string
	Context string
}

// FeatureSelectionChanged replaces the selection from a property inspector.
type FeatureSelectionChanged struct {
	Context   string
	Selection map[string][]string
}

func (ButtonAppeared) isEvent()           {}
func (ButtonDisappeared) isEvent()        {}
func (ButtonPressed) isEvent()            {}
func (HardwareSelectorChanged) isEvent()  {}
func (HardwareParameterChanged) isEvent() {}
func (HardwareVolumeChanged) isEvent()    {}
func (SettingsLoaded) isEvent()           {}
func (FeatureQuery) isEvent()             {}
func (FeatureSelectionChanged) isEvent()  {}
