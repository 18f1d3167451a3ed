package coordinator

import "errors"

// Domain-specific errors for the coordinator.
// Use errors.Is() to check for these errors.
var (
	// ErrStopped is returned by Submit once the loop has exited.
	ErrStopped = errors.New("coordinator stopped")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("coordinator already running")
)
