package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed channel.
	ErrClosed = errors.New("transport: closed")

	// ErrNotOpen is returned when publishing on a channel that is not open yet.
	ErrNotOpen = errors.New("transport: channel not open")

	// ErrNoChannel is returned when a transport has no channel to hand out.
	ErrNoChannel = errors.New("transport: no channel")

	// ErrUnsupportedKind is returned when a transport of the wrong kind is used.
	ErrUnsupportedKind = errors.New("transport: unsupported kind")

	// ErrNoHandler is returned when a listener is created without a handler.
	ErrNoHandler = errors.New("transport: no handler")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrPublishFailed is returned when a message could not be written.
	ErrPublishFailed = errors.New("transport: publish failed")
)
