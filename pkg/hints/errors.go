package hints

import "errors"

// Package errors.
var (
	// ErrNoAcquirer is returned by New when Config.Acquire is nil.
	ErrNoAcquirer = errors.New("hints: no transport acquirer configured")

	// ErrAlreadySetup is returned when Setup is called more than once.
	ErrAlreadySetup = errors.New("hints: already set up")

	// ErrClosed is returned when an operation is attempted after Close.
	ErrClosed = errors.New("hints: closed")

	// ErrUnexpectedType is returned when decoding a message of another type.
	ErrUnexpectedType = errors.New("hints: unexpected message type")

	// ErrMalformedMessage is returned when a message cannot be decoded.
	ErrMalformedMessage = errors.New("hints: malformed message")
)
