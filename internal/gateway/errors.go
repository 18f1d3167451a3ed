package gateway

import "errors"

// Domain-specific errors for device gateway operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoSnapshot is returned when the device state cannot be read.
	ErrNoSnapshot = errors.New("gateway: snapshot unavailable")

	// ErrRejected is returned when the device refuses an apply request.
	ErrRejected = errors.New("gateway: apply rejected")

	// ErrTimeout is returned when a request outlives its context deadline.
	ErrTimeout = errors.New("gateway: operation timed out")

	// ErrClosed is returned after the gateway has been closed.
	ErrClosed = errors.New("gateway: closed")

	// ErrNotConnected is returned when the transport is down.
	ErrNotConnected = errors.New("gateway: not connected")

	// ErrBridge wraps failures reported by the bridge on its event stream.
	ErrBridge = errors.New("gateway: bridge reported error")
)
