package streamdeck

import "errors"

var (
	// ErrNotConnected is returned before Connect has succeeded.
	ErrNotConnected = errors.New("streamdeck: not connected")

	// ErrConnectionLost is returned when the socket to the Stream Deck application fails.
	// The plugin cannot continue without it.
	ErrConnectionLost = errors.New("streamdeck: connection lost")

	// ErrSendQueueFull is returned when an outbound message could not be queued in time.
	ErrSendQueueFull = errors.New("streamdeck: send queue full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("streamdeck: client closed")
)
