// Package gateway defines the boundary to the audio device driver: reading the
// current device state, applying an output configuration, and streaming
// hardware change notifications.
package gateway

import (
	"context"

	"sbzdeck/internal/profile"
)

// Well-known device names.
const (
	// DeviceControlFeature holds the output selector.
	DeviceControlFeature = "Device Control"

	// SelectOutputParameter is the selector parameter inside DeviceControlFeature.
	SelectOutputParameter = "SelectOutput"
)

// Gateway is the capability the coordinator needs from the device layer.
type Gateway interface {
	// Snapshot reads the live device state.
	Snapshot(ctx context.Context) (Snapshot, error)

	// Apply writes an output configuration.
	Apply(ctx context.Context, req ApplyRequest) error

	// Subscribe returns the hardware change stream. The channel is closed when
	// ctx ends or the gateway shuts down. It cannot be restarted.
	Subscribe(ctx context.Context) (<-chan Notification, error)
}

// Snapshot is the device state at one instant.
type Snapshot struct {
	OutputCode *int64
	Volume     *float32
	Features   profile.Parameters
}

// Output resolves the selector code. It reports false when the code is absent or unrecognized.
func (s Snapshot) Output() (profile.Output, bool) {
	if s.OutputCode == nil {
		return 0, false
	}
	return profile.OutputFromCode(*s.OutputCode)
}

// Profile returns the snapshot as a profile.
func (s Snapshot) Profile() profile.Profile {
	p := profile.Profile{Volume: s.Volume, Parameters: s.Features}
	return p.Clone()
}

// ApplyRequest is one output configuration.
type ApplyRequest struct {
	OutputCode uint32
	Volume     *float32
	Features   profile.Parameters
}

// BuildApplyRequest computes the apply-set for switching to target: the stored volume,
// every selected parameter the stored profile knows, and the selector forced to the
// target's code.
func BuildApplyRequest(target profile.Output, stored profile.Profile, selection profile.Selection) ApplyRequest {
	features := make(profile.Parameters)
	for feature, names := range selection {
		params, ok := stored.Parameters[feature]
		if !ok {
			continue
		}
		for name := range names {
			if v, ok := params[name]; ok {
				features.Set(feature, name, v)
			}
		}
	}
	features.Set(DeviceControlFeature, SelectOutputParameter, profile.Uint32(target.Code()))

	req := ApplyRequest{OutputCode: target.Code(), Features: features}
	if stored.Volume != nil {
		v := *stored.Volume
		req.Volume = &v
	}
	return req
}

// ChangeEvent is one hardware-originated change.
type ChangeEvent interface {
	isChangeEvent()
}

// SelectorChanged reports a new output selector value.
type SelectorChanged struct {
	Value profile.Value
}

// ParameterChanged reports a new value for a non-selector parameter.
type ParameterChanged struct {
	Feature   string
	Parameter string
	Value     profile.Value
}

// VolumeChanged reports an endpoint volume change.
type VolumeChanged struct {
	Volume float32
	Muted  bool
}

func (SelectorChanged) isChangeEvent()  {}
func (ParameterChanged) isChangeEvent() {}
func (VolumeChanged) isChangeEvent()    {}

// Notification is one item of the change stream; exactly one of Event and Err is set.
type Notification struct {
	Event ChangeEvent
	Err   error
}

// ClassifyParameter turns a parameter change into SelectorChanged when it targets the
// output selector.
func ClassifyParameter(feature, parameter string, v profile.Value) ChangeEvent {
	if feature == DeviceControlFeature && parameter == SelectOutputParameter {
		return SelectorChanged{Value: v}
	}
	return ParameterChanged{Feature: feature, Parameter: parameter, Value: v}
}

// SnapshotFrom builds a snapshot whose output code is read from the selector parameter.
func SnapshotFrom(volume *float32, features profile.Parameters) Snapshot {
	s := Snapshot{Volume: volume, Features: features}
	if v, ok := features.Get(DeviceControlFeature, SelectOutputParameter); ok {
		if n, ok := v.AsUint32(); ok {
			code := int64(n)
			s.OutputCode = &code
		} else if n, ok := v.AsInt32(); ok {
			code := int64(n)
			s.OutputCode = &code
		}
	}
	return s
}
