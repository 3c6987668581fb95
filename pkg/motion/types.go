// Package motion implements the episode engine: a debounced motion signal
// drives an Idle/Active state machine that records and alerts exactly once
// per contiguous motion episode.
//
// Image processing lives in pkg/vision and frame acquisition in pkg/capture;
// this package only sees them through the Source and Detector interfaces so
// the state machine can be exercised without a camera.
package motion

import (
	"context"
	"time"
)

// Frame is a captured image owned by a single detection cycle.
// The engine closes it once detection has finished.
type Frame interface {
	Close() error
}

// Region is a candidate motion area found by differencing.
type Region struct {
	X, Y          int
	Width, Height int
	Area          float64 // contour area in px²
}

// Detection is the per-frame output of a Detector.
type Detection struct {
	// Motion is true iff at least one region reached the minimum area.
	Motion bool

	// Regions holds only the regions that reached the minimum area.
	Regions []Region

	// Annotated is the JPEG-encoded frame with regions drawn, or nil.
	Annotated []byte
}

// Source supplies frames. Any error means "temporarily unavailable":
// the engine skips the cycle and retries.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// Detector turns a frame into a motion decision.
// Implementations own the background model.
type Detector interface {
	Detect(frame Frame) (Detection, error)
}

// Recorder persists one record per episode start.
type Recorder interface {
	// Append adds a timestamp to the episode log.
	Append(ctx context.Context, ts time.Time) error

	// SaveSnapshot persists the frame that opened the episode.
	SaveSnapshot(ctx context.Context, ts time.Time, jpeg []byte) error
}

// Alerter starts the alert cue. Trigger must return immediately and report
// whether a new playback was started (false while one is already in flight).
type Alerter interface {
	Trigger() bool
}

// FrameSink receives the annotated frame of every processed cycle.
type FrameSink interface {
	PublishFrame(jpeg []byte)
}
