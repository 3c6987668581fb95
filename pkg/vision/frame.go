package vision

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is a BGR camera image. The detector draws on Mat in place, so a
// Frame must not be shared after it is handed to Detect.
type Frame struct {
	Mat        gocv.Mat
	CapturedAt time.Time
}

// NewFrame wraps mat, taking ownership of it.
func NewFrame(mat gocv.Mat) *Frame {
	return &Frame{Mat: mat, CapturedAt: time.Now()}
}

// Close releases the underlying image.
func (f *Frame) Close() error {
	return f.Mat.Close()
}
