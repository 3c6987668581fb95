package recorder

import "errors"

var (
	// ErrQueueFull is returned by Async when the write queue is saturated.
	ErrQueueFull = errors.New("recorder queue full")

	// ErrEmptySnapshot is returned when asked to save a zero-length image.
	ErrEmptySnapshot = errors.New("empty snapshot")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("recorder closed")
)
