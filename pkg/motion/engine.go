package motion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Config holds the engine's tunable parameters.
type Config struct {
	// RequiredFrames is the consecutive-frame debounce threshold.
	RequiredFrames int

	// RetryDelay is how long to wait after a skipped cycle before
	// asking the source again.
	RetryDelay time.Duration

	// SkipLogEvery rate-limits "frame unavailable" warnings: one line per
	// this many consecutive skips.
	SkipLogEvery int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		RequiredFrames: DefaultRequiredFrames,
		RetryDelay:     50 * time.Millisecond,
		SkipLogEvery:   100,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.RequiredFrames < 1 {
		return fmt.Errorf("required_frames must be at least 1, got %d", c.RequiredFrames)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative, got %v", c.RetryDelay)
	}
	return nil
}

// CycleResult describes one completed detection cycle.
type CycleResult struct {
	Index     uint64 // 0-based index among processed (non-skipped) frames
	Motion    bool
	Sustained bool
	State     EpisodeState
	Episode   *Episode
	Regions   []Region
}

// Stats are cumulative engine counters.
type Stats struct {
	FramesProcessed uint64 `json:"frames_processed"`
	CyclesSkipped   uint64 `json:"cycles_skipped"`
	Episodes        uint64 `json:"episodes"`
	AlertsStarted   uint64 `json:"alerts_started"`
	AlertsShared    uint64 `json:"alerts_shared"`
}

// Engine runs the detection cycle: acquire, detect, debounce, transition.
type Engine struct {
	cfg        Config
	source     Source
	detector   Detector
	filter     *PersistenceFilter
	controller *Controller
	sink       FrameSink
	logger     *slog.Logger

	motionDetected atomic.Bool
	processed      atomic.Uint64
	skipped        atomic.Uint64
	episodes       atomic.Uint64
	alertsStarted  atomic.Uint64
	alertsShared   atomic.Uint64

	consecutiveSkips int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithFrameSink publishes every annotated frame to sink.
func WithFrameSink(sink FrameSink) EngineOption {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine wires a source, detector and controller into a detection loop.
func NewEngine(cfg Config, source Source, detector Detector, controller *Controller, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil || detector == nil || controller == nil {
		return nil, errors.New("engine requires source, detector, and controller")
	}
	e := &Engine{
		cfg:        cfg,
		source:     source,
		detector:   detector,
		filter:     NewPersistenceFilter(cfg.RequiredFrames),
		controller: controller,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes detection cycles until ctx is cancelled. The cycle in
// progress when cancellation arrives is completed before Run returns.
// Frame acquisition failures are retried forever and never returned.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("detection engine started",
		"required_frames", e.filter.Required(),
		"retry_delay", e.cfg.RetryDelay,
	)
	defer e.logger.Info("detection engine stopped", "frames", e.processed.Load(), "episodes", e.episodes.Load())

	for {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := e.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !sleepCtx(ctx, e.cfg.RetryDelay) {
				return nil
			}
		}
	}
}

// Cycle runs a single acquire/detect/transition step. A skipped cycle returns
// an error wrapping ErrCycleSkipped and leaves the debounce counter and the
// episode state untouched.
func (e *Engine) Cycle(ctx context.Context) (CycleResult, error) {
	frame, err := e.source.Next(ctx)
	if err != nil {
		e.noteSkip("frame unavailable", err)
		return CycleResult{}, fmt.Errorf("%w: %w", ErrCycleSkipped, err)
	}
	if frame == nil {
		e.noteSkip("frame unavailable", ErrFrameUnavailable)
		return CycleResult{}, fmt.Errorf("%w: %w", ErrCycleSkipped, ErrFrameUnavailable)
	}

	det, err := e.detector.Detect(frame)
	if cerr := frame.Close(); cerr != nil {
		e.logger.Debug("frame close failed", "error", cerr)
	}
	if err != nil {
		e.noteSkip("detection failed", err)
		return CycleResult{}, fmt.Errorf("%w: %w", ErrCycleSkipped, err)
	}
	e.consecutiveSkips = 0

	sustained := e.filter.Step(det.Motion)
	state, ep := e.controller.Step(ctx, sustained, det.Annotated)
	e.motionDetected.Store(state == Active)

	if ep != nil {
		e.episodes.Add(1)
		if ep.AlertStarted {
			e.alertsStarted.Add(1)
		} else {
			e.alertsShared.Add(1)
		}
	}

	if e.sink != nil && det.Annotated != nil {
		e.sink.PublishFrame(det.Annotated)
	}

	index := e.processed.Add(1) - 1
	return CycleResult{
		Index:     index,
		Motion:    det.Motion,
		Sustained: sustained,
		State:     state,
		Episode:   ep,
		Regions:   det.Regions,
	}, nil
}

// MotionDetected reports whether an episode is currently active.
// Safe for concurrent use.
func (e *Engine) MotionDetected() bool {
	return e.motionDetected.Load()
}

// Stats returns a snapshot of the engine counters. Safe for concurrent use.
func (e *Engine) Stats() Stats {
	return Stats{
		FramesProcessed: e.processed.Load(),
		CyclesSkipped:   e.skipped.Load(),
		Episodes:        e.episodes.Load(),
		AlertsStarted:   e.alertsStarted.Load(),
		AlertsShared:    e.alertsShared.Load(),
	}
}

func (e *Engine) noteSkip(reason string, err error) {
	e.skipped.Add(1)
	e.consecutiveSkips++
	every := e.cfg.SkipLogEvery
	if every < 1 {
		every = 1
	}
	if e.consecutiveSkips == 1 || e.consecutiveSkips%every == 0 {
		e.logger.Warn("skipping detection cycle",
			"reason", reason,
			"consecutive", e.consecutiveSkips,
			"error", err,
		)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
