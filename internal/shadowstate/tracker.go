// Package shadowstate keeps a bounded, read-only record of what the coordinator
// observed and decided, for the status API.
package shadowstate

import (
	"sync"

	"sbzdeck/internal/clock"
)

const defaultHistorySize = 50

// Tracker is safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	clock    clock.Clock
	capacity int
	state    SwitchShadowState
}

// NewTracker creates a tracker keeping up to capacity action records.
func NewTracker(c clock.Clock, capacity int) *Tracker {
	if capacity <= 0 {
		capacity = defaultHistorySize
	}
	return &Tracker{
		clock:    c,
		capacity: capacity,
		state: SwitchShadowState{
			Inputs: SwitchInputs{
				Current:      make(map[string]any),
				AtLastAction: make(map[string]any),
			},
			Outputs:  SwitchOutputs{CurrentOutput: "unknown"},
			Metadata: StateMetadata{Component: "coordinator"},
		},
	}
}

// UpdateCurrentInputs merges observed hardware values.
func (t *Tracker) UpdateCurrentInputs(inputs map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, value := range inputs {
		t.state.Inputs.Current[key] = value
	}
	t.state.Metadata.LastUpdated = t.clock.Now()
}

// SetCurrentOutput records the output the coordinator believes is active.
func (t *Tracker) SetCurrentOutput(output string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Outputs.CurrentOutput = output
	t.state.Metadata.LastUpdated = t.clock.Now()
}

// RecordAction appends a decision and snapshots the current inputs alongside it.
func (t *Tracker) RecordAction(actionType, reason string, details map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	record := ActionRecord{
		Timestamp:  now,
		ActionType: actionType,
		Reason:     reason,
		Details:    details,
	}

	t.state.History = append(t.state.History, record)
	if over := len(t.state.History) - t.capacity; over > 0 {
		t.state.History = append([]ActionRecord(nil), t.state.History[over:]...)
	}

	t.state.Inputs.AtLastAction = make(map[string]any, len(t.state.Inputs.Current))
	for key, value := range t.state.Inputs.Current {
		t.state.Inputs.AtLastAction[key] = value
	}

	t.state.Outputs.LastAction = &record
	t.state.Outputs.LastActionTime = now
	t.state.Metadata.LastUpdated = now
}

// History returns the recorded actions, oldest first.
func (t *Tracker) History() []ActionRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]ActionRecord(nil), t.state.History...)
}

// GetState returns the current shadow state (thread-safe copy)
func (t *Tracker) GetState() SwitchShadowState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stateCopy := SwitchShadowState{
		Inputs: SwitchInputs{
			Current:      make(map[string]any, len(t.state.Inputs.Current)),
			AtLastAction: make(map[string]any, len(t.state.Inputs.AtLastAction)),
		},
		Outputs:  t.state.Outputs,
		History:  append([]ActionRecord(nil), t.state.History...),
		Metadata: t.state.Metadata,
	}
	for k, v := range t.state.Inputs.Current {
		stateCopy.Inputs.Current[k] = v
	}
	for k, v := range t.state.Inputs.AtLastAction {
		stateCopy.Inputs.AtLastAction[k] = v
	}
	if t.state.Outputs.LastAction != nil {
		last := *t.state.Outputs.LastAction
		stateCopy.Outputs.LastAction = &last
	}
	return stateCopy
}
