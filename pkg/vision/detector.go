package vision

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-sentinel/pkg/debug"
	"github.com/teslashibe/go-sentinel/pkg/motion"
)

// boxColor outlines motion regions in red.
var boxColor = color.RGBA{255, 0, 0, 0}

// Detector implements motion.Detector over *Frame values.
type Detector struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	bg       *BackgroundModel
	diff     *Differencer
	gray     gocv.Mat
	smoothed gocv.Mat
	frames   uint64

	// encode turns the annotated frame into JPEG bytes.
	encode func(gocv.Mat) ([]byte, error)
}

// NewDetector creates a detector. The background model is seeded by the
// first frame passed to Detect.
func NewDetector(cfg Config, logger *slog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vision config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Detector{
		cfg:      cfg,
		logger:   logger,
		bg:       NewBackgroundModel(cfg.Alpha),
		diff:     NewDifferencer(cfg),
		gray:     gocv.NewMat(),
		smoothed: gocv.NewMat(),
	}
	d.encode = d.encodeJPEG
	return d, nil
}

// Detect runs the motion pipeline on f, which must be a *Frame. The frame's
// image is annotated in place and returned JPEG-encoded.
//
// Errors are only returned before the background model is touched. Once the
// frame has been folded into the background the detection is always
// returned; if encoding fails it carries no Annotated image.
func (d *Detector) Detect(f motion.Frame) (motion.Detection, error) {
	frame, ok := f.(*Frame)
	if !ok || frame == nil {
		return motion.Detection{}, fmt.Errorf("%w: %T", ErrUnsupportedFrame, f)
	}
	if frame.Mat.Empty() {
		return motion.Detection{}, fmt.Errorf("%w: empty image", ErrUnsupportedFrame)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.toGray(frame.Mat); err != nil {
		return motion.Detection{}, err
	}
	d.diff.Smooth(d.gray, &d.smoothed)

	size := image.Pt(d.smoothed.Cols(), d.smoothed.Rows())
	if d.bg.Ready() && d.bg.Size() != size {
		d.logger.Warn("frame size changed, resetting background",
			"from", d.bg.Size(),
			"to", size,
		)
	}
	ref := d.bg.Update(d.smoothed)
	regions := d.diff.Compare(d.smoothed, ref)
	d.frames++

	if len(regions) > 0 {
		debug.FrameLog("motion regions", "frame", d.frames, "regions", len(regions), "largest", largestArea(regions))
	}

	if d.cfg.Annotate {
		for _, r := range regions {
			gocv.Rectangle(&frame.Mat, image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height), boxColor, 2)
		}
	}

	jpeg, err := d.encode(frame.Mat)
	if err != nil {
		d.logger.Warn("annotated frame not encoded", "frame", d.frames, "error", err)
		jpeg = nil
	}

	return motion.Detection{
		Motion:    len(regions) > 0,
		Regions:   regions,
		Annotated: jpeg,
	}, nil
}

func (d *Detector) toGray(src gocv.Mat) error {
	switch src.Channels() {
	case 1:
		src.CopyTo(&d.gray)
	case 3:
		gocv.CvtColor(src, &d.gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(src, &d.gray, gocv.ColorBGRAToGray)
	default:
		return fmt.Errorf("%w: %d channels", ErrUnsupportedFrame, src.Channels())
	}
	return nil
}

func (d *Detector) encodeJPEG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, d.cfg.JPEGQuality})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Close releases native memory.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gray.Close()
	d.smoothed.Close()
	d.bg.Close()
	return d.diff.Close()
}

func largestArea(regions []motion.Region) float64 {
	var largest float64
	for _, r := range regions {
		largest = max(largest, r.Area)
	}
	return largest
}
