package peripheral

import "errors"

var (
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("peripheral closed")

	// ErrUnsupported is returned by transports that lack an optional capability.
	ErrUnsupported = errors.New("unsupported")

	// ErrPayloadSize indicates a payload of the wrong length.
	ErrPayloadSize = errors.New("invalid payload size")

	// ErrEmptyPayload indicates a write request without data.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrUnknownCommand indicates a command byte outside the CommandCode set.
	ErrUnknownCommand = errors.New("unknown command")
)
