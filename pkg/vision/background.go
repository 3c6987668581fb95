package vision

import (
	"image"

	"gocv.io/x/gocv"
)

// BackgroundModel is an exponentially weighted running average of smoothed
// grayscale frames: ref = (1-alpha)*ref + alpha*frame.
type BackgroundModel struct {
	alpha float64
	acc   gocv.Mat // CV_32F accumulator
	ref   gocv.Mat // CV_8U reference derived from acc
	size  image.Point
	ready bool
}

// NewBackgroundModel creates an empty model.
func NewBackgroundModel(alpha float64) *BackgroundModel {
	return &BackgroundModel{
		alpha: alpha,
		acc:   gocv.NewMat(),
		ref:   gocv.NewMat(),
	}
}

// Update folds frame into the model and returns the reference image. The
// first frame, or a frame whose size differs from the model, becomes the
// reference as-is. The returned Mat is owned by the model and valid until the
// next Update.
func (b *BackgroundModel) Update(frame gocv.Mat) gocv.Mat {
	size := image.Pt(frame.Cols(), frame.Rows())
	if !b.ready || size != b.size {
		frame.ConvertTo(&b.acc, gocv.MatTypeCV32F)
		b.size = size
		b.ready = true
	} else {
		gocv.AccumulatedWeighted(frame, &b.acc, b.alpha)
	}
	gocv.ConvertScaleAbs(b.acc, &b.ref, 1, 0)
	return b.ref
}

// Ready reports whether the model has seen a frame.
func (b *BackgroundModel) Ready() bool {
	return b.ready
}

// Size returns the frame size the model was built from.
func (b *BackgroundModel) Size() image.Point {
	return b.size
}

// Close releases native memory.
func (b *BackgroundModel) Close() error {
	b.ready = false
	err := b.acc.Close()
	if rerr := b.ref.Close(); err == nil {
		err = rerr
	}
	return err
}
