package responder

import "errors"

// Package errors.
var (
	// ErrNoChannel is returned by New when Config.Channel is nil.
	ErrNoChannel = errors.New("responder: no channel configured")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("responder: already started")

	// ErrClosed is returned when an operation is attempted after Close.
	ErrClosed = errors.New("responder: closed")
)
