package motion

import "errors"

var (
	// ErrFrameUnavailable is returned by sources when no frame could be read.
	ErrFrameUnavailable = errors.New("frame temporarily unavailable")

	// ErrCycleSkipped is returned by Engine.Cycle when the cycle did not
	// advance any state (no frame, or detection failed).
	ErrCycleSkipped = errors.New("detection cycle skipped")
)
