package alert

import "errors"

var (
	// ErrClosed is returned when using a player or backend after Close.
	ErrClosed = errors.New("alert player closed")

	// ErrNoSound is returned when a command backend has no cue file.
	ErrNoSound = errors.New("alert sound not configured")
)
