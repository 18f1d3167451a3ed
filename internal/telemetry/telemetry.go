// Package telemetry records output switches and observed volumes.
package telemetry

import (
	"time"

	"sbzdeck/internal/profile"
)

// Recorder receives coordinator telemetry. Implementations must not block.
type Recorder interface {
	SwitchCompleted(from *profile.Output, to profile.Output, err error, elapsed time.Duration)
	VolumeObserved(output profile.Output, volume float32)
}

// Nop discards everything.
type Nop struct{}

func (Nop) SwitchCompleted(*profile.Output, profile.Output, error, time.Duration) {}
func (Nop) VolumeObserved(profile.Output, float32)                                {}
