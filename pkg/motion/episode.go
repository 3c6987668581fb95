package motion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// EpisodeState is the controller's view of the scene.
type EpisodeState int

const (
	// Idle means no sustained motion is currently recognized.
	Idle EpisodeState = iota
	// Active means an episode is in progress.
	Active
)

// String returns the state name.
func (s EpisodeState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("EpisodeState(%d)", int(s))
	}
}

// Episode describes an Idle→Active transition and its side effects.
type Episode struct {
	Seq          uint64    // 1-based episode number since start
	Start        time.Time // timestamp handed to the recorder
	AlertStarted bool      // false when the cue was already playing
	RecordErr    error     // joined append/snapshot failures, if any
}

// Transition is reported to the transition hook on every state change.
type Transition struct {
	From, To EpisodeState
	Episode  *Episode // set only for Idle→Active
}

// Controller owns the episode lifecycle. Step must be called from a single
// goroutine (the detection cycle).
type Controller struct {
	state    EpisodeState
	recorder Recorder
	alerter  Alerter
	now      func() time.Time
	logger   *slog.Logger
	onChange func(Transition)

	seq         atomic.Uint64 // read by status surfaces
	activeSince time.Time
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.now = now
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTransitionHook registers a callback invoked synchronously on every
// state change. It runs on the detection goroutine and must not block.
func WithTransitionHook(fn func(Transition)) ControllerOption {
	return func(c *Controller) {
		c.onChange = fn
	}
}

// NewController creates a controller in the Idle state. Either collaborator
// may be nil, in which case that side effect is skipped.
func NewController(recorder Recorder, alerter Alerter, opts ...ControllerOption) *Controller {
	c := &Controller{
		state:    Idle,
		recorder: recorder,
		alerter:  alerter,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current episode state.
func (c *Controller) State() EpisodeState {
	return c.state
}

// Episodes returns how many episodes have started. Safe for concurrent use.
func (c *Controller) Episodes() uint64 {
	return c.seq.Load()
}

// Step applies one sustained-motion sample. snapshot is the annotated frame
// persisted if this step opens an episode. The returned Episode is non-nil
// only on the Idle→Active transition.
func (c *Controller) Step(ctx context.Context, sustained bool, snapshot []byte) (EpisodeState, *Episode) {
	switch {
	case c.state == Idle && sustained:
		c.state = Active
		ep := c.startEpisode(ctx, snapshot)
		c.notify(Transition{From: Idle, To: Active, Episode: ep})
		return c.state, ep

	case c.state == Active && !sustained:
		c.state = Idle
		c.logger.Info("motion episode ended",
			"seq", c.seq.Load(),
			"duration", c.now().Sub(c.activeSince).Round(time.Millisecond),
		)
		c.notify(Transition{From: Active, To: Idle})
	}
	return c.state, nil
}

// startEpisode performs the once-per-episode side effects. Recorder failures
// are reported but never prevent the alert or undo the transition.
func (c *Controller) startEpisode(ctx context.Context, snapshot []byte) *Episode {
	seq := c.seq.Add(1)
	ts := c.now()
	c.activeSince = ts
	ep := &Episode{Seq: seq, Start: ts}

	if c.recorder != nil {
		var errs []error
		if err := c.recorder.Append(ctx, ts); err != nil {
			errs = append(errs, fmt.Errorf("append event: %w", err))
		}
		if err := c.recorder.SaveSnapshot(ctx, ts, snapshot); err != nil {
			errs = append(errs, fmt.Errorf("save snapshot: %w", err))
		}
		if len(errs) > 0 {
			ep.RecordErr = errors.Join(errs...)
			c.logger.Error("failed to record motion episode", "seq", ep.Seq, "error", ep.RecordErr)
		}
	}

	if c.alerter != nil {
		ep.AlertStarted = c.alerter.Trigger()
	}

	c.logger.Info("motion episode started",
		"seq", ep.Seq,
		"at", ts.Format(time.RFC3339),
		"alert_started", ep.AlertStarted,
	)
	return ep
}

func (c *Controller) notify(t Transition) {
	if c.onChange != nil {
		c.onChange(t)
	}
}
