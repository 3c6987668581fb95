package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-sentinel/pkg/debug"
	"github.com/teslashibe/go-sentinel/pkg/motion"
	"github.com/teslashibe/go-sentinel/pkg/vision"
)

// Source is a motion.Source backed by an OpenCV VideoCapture.
type Source struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	vc       *gocv.VideoCapture
	failures int
	closed   bool

	reads   atomic.Uint64
	dropped atomic.Uint64
	reopens atomic.Uint64
}

// Open opens the configured device.
func Open(cfg Config, logger *slog.Logger) (*Source, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid capture config: %v", errs)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Source{cfg: cfg, logger: logger}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) open() error {
	var device any = s.cfg.Device
	if idx, ok := s.cfg.DeviceIndex(); ok {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return fmt.Errorf("open capture %q: %w", s.cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("open capture %q: %w", s.cfg.Device, ErrNotOpened)
	}

	if s.cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(s.cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(s.cfg.Height))
	}
	if s.cfg.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(s.cfg.Framerate))
	}

	s.vc = vc
	s.logger.Info("capture opened",
		"device", s.cfg.Device,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
		"fps", vc.Get(gocv.VideoCaptureFPS),
	)
	return nil
}

// Next blocks until the device yields a frame. A failed or empty read returns
// motion.ErrFrameUnavailable; the caller is expected to retry.
func (s *Source) Next(ctx context.Context) (motion.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrNotOpened
	}
	if s.vc == nil {
		if err := s.open(); err != nil {
			s.dropped.Add(1)
			return nil, fmt.Errorf("%w: %w", motion.ErrFrameUnavailable, err)
		}
		s.reopens.Add(1)
	}

	mat := gocv.NewMat()
	if ok := s.vc.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		s.dropped.Add(1)
		s.failures++
		debug.Log("capture read failed", "device", s.cfg.Device, "consecutive", s.failures)
		s.maybeReopenLocked()
		return nil, motion.ErrFrameUnavailable
	}

	s.failures = 0
	s.reads.Add(1)
	return vision.NewFrame(mat), nil
}

func (s *Source) maybeReopenLocked() {
	if s.cfg.ReopenAfter == 0 || s.failures < s.cfg.ReopenAfter {
		return
	}
	s.logger.Warn("capture stalled, reopening", "device", s.cfg.Device, "failed_reads", s.failures)
	s.failures = 0
	s.vc.Close()
	s.vc = nil
	if err := s.open(); err != nil {
		s.logger.Error("capture reopen failed", "device", s.cfg.Device, "error", err)
		return
	}
	s.reopens.Add(1)
}

// Stats returns read counters: frames delivered, failed reads, reopens.
func (s *Source) Stats() (reads, dropped, reopens uint64) {
	return s.reads.Load(), s.dropped.Load(), s.reopens.Load()
}

// Close releases the device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.vc == nil {
		return nil
	}
	err := s.vc.Close()
	s.vc = nil
	return err
}
