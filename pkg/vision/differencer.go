package vision

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-sentinel/pkg/motion"
)

// Differencer finds regions where a smoothed frame departs from a background
// reference. It never modifies the reference.
type Differencer struct {
	blur       image.Point
	threshold  float32
	iterations int
	minArea    float64

	kernel  gocv.Mat
	delta   gocv.Mat
	mask    gocv.Mat
	dilated gocv.Mat
}

// NewDifferencer creates a differencer from cfg.
func NewDifferencer(cfg Config) *Differencer {
	return &Differencer{
		blur:       image.Pt(cfg.BlurSize, cfg.BlurSize),
		threshold:  float32(cfg.DiffThreshold),
		iterations: cfg.DilateIterations,
		minArea:    cfg.MinArea,
		kernel:     gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
		delta:      gocv.NewMat(),
		mask:       gocv.NewMat(),
		dilated:    gocv.NewMat(),
	}
}

// Smooth writes a Gaussian-blurred copy of gray into dst.
func (d *Differencer) Smooth(gray gocv.Mat, dst *gocv.Mat) {
	gocv.GaussianBlur(gray, dst, d.blur, 0, 0, gocv.BorderDefault)
}

// Compare returns the bounding boxes of foreground contours in smoothed whose
// area is at least the configured minimum. Motion is present iff the result
// is non-empty.
func (d *Differencer) Compare(smoothed, reference gocv.Mat) []motion.Region {
	gocv.AbsDiff(smoothed, reference, &d.delta)
	gocv.Threshold(d.delta, &d.mask, d.threshold, 255, gocv.ThresholdBinary)

	d.mask.CopyTo(&d.dilated)
	for i := 0; i < d.iterations; i++ {
		gocv.Dilate(d.dilated, &d.dilated, d.kernel)
	}

	contours := gocv.FindContours(d.dilated, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var regions []motion.Region
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		area := gocv.ContourArea(c)
		if area < d.minArea {
			continue
		}
		r := gocv.BoundingRect(c)
		regions = append(regions, motion.Region{
			X:      r.Min.X,
			Y:      r.Min.Y,
			Width:  r.Dx(),
			Height: r.Dy(),
			Area:   area,
		})
	}
	return regions
}

// Close releases native memory.
func (d *Differencer) Close() error {
	for _, m := range []*gocv.Mat{&d.kernel, &d.delta, &d.mask, &d.dilated} {
		if err := m.Close(); err != nil {
			return err
		}
	}
	return nil
}
