package shadowstate

import "time"

// Action types recorded by the coordinator.
const (
	ActionSwitch           = "switch"
	ActionSwitchFailed     = "switch_failed"
	ActionSwitchSkipped    = "switch_skipped"
	ActionSelectorChanged  = "selector_changed"
	ActionSelectorUnknown  = "selector_unknown"
	ActionSettingsLoaded   = "settings_loaded"
	ActionSettingsRejected = "settings_rejected"
	ActionSelectionChanged = "selection_changed"
)

// StateMetadata contains metadata about the shadow state
type StateMetadata struct {
	LastUpdated time.Time `json:"lastUpdated"`
	Component   string    `json:"component"`
}

// ActionRecord represents a single decision taken by the coordinator
type ActionRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	ActionType string         `json:"actionType"`
	Reason     string         `json:"reason"`
	Details    map[string]any `json:"details,omitempty"`
}

// SwitchInputs tracks the hardware values seen now and at the last switch.
type SwitchInputs struct {
	Current      map[string]any `json:"current"`
	AtLastAction map[string]any `json:"atLastAction"`
}

// SwitchOutputs tracks what the coordinator last did.
type SwitchOutputs struct {
	CurrentOutput  string        `json:"currentOutput"`
	LastAction     *ActionRecord `json:"lastAction,omitempty"`
	LastActionTime time.Time     `json:"lastActionTime"`
}

// SwitchShadowState is the coordinator's shadow state.
type SwitchShadowState struct {
	Inputs   SwitchInputs   `json:"inputs"`
	Outputs  SwitchOutputs  `json:"outputs"`
	History  []ActionRecord `json:"history"`
	Metadata StateMetadata  `json:"metadata"`
}
