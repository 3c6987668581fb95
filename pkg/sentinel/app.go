// Package sentinel wires the capture, detection, episode, alert, recording,
// and dashboard components into a running motion sentinel.
package sentinel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/teslashibe/go-sentinel/internal/config"
	"github.com/teslashibe/go-sentinel/pkg/alert"
	"github.com/teslashibe/go-sentinel/pkg/capture"
	"github.com/teslashibe/go-sentinel/pkg/debug"
	"github.com/teslashibe/go-sentinel/pkg/motion"
	"github.com/teslashibe/go-sentinel/pkg/recorder"
	"github.com/teslashibe/go-sentinel/pkg/vision"
	"github.com/teslashibe/go-sentinel/pkg/web"
)

// ErrAlreadyRunning is returned by Init when another sentinel holds the
// data directory lock.
var ErrAlreadyRunning = errors.New("another sentinel instance is using this data directory")

// ErrServerStopped is returned by Run when the dashboard stops serving
// before ctx is cancelled.
var ErrServerStopped = errors.New("web server stopped")

// Options adjust how the app is assembled. The zero value runs the camera,
// the gocv detector, and the configured alert sound.
type Options struct {
	NoAlert     bool // never play a cue
	Silent      bool // play a silent cue of alert.silent_ms instead of the sound file
	DebugFrames bool // per-frame detection logs

	Logger *slog.Logger

	// Source, Detector, and AlertBackend replace the hardware-backed
	// defaults when set.
	Source       motion.Source
	Detector     motion.Detector
	AlertBackend alert.Backend
}

// App is the sentinel orchestrator.
// It owns every component and their lifecycle.
type App struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	lock *flock.Flock

	// Frame pipeline
	capture    *capture.Source // nil when Options.Source is set
	source     motion.Source
	detector   motion.Detector
	controller *motion.Controller
	engine     *motion.Engine

	// Side effects
	player   *alert.Player
	recorder *recorder.Recorder
	async    *recorder.Async
	store    *recorder.Store

	// Dashboard
	webServer *web.Server
	listener  net.Listener

	closers      []func() error
	shutdownOnce sync.Once
}

// New validates cfg and returns an app ready for Init.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("sentinel requires a config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Silent && !opts.NoAlert && cfg.Alert.Enabled && opts.AlertBackend == nil && cfg.Alert.SilentMS <= 0 {
		return nil, &config.ConfigError{Field: "alert.silent_ms", Message: "alert.silent_ms must be positive for --silent"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debug.Frames = opts.DebugFrames

	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
		lock:   flock.New(cfg.LockPath()),
	}, nil
}

// Init acquires the data directory lock and builds every component.
// Call this after New() and before Run(). On error everything opened so far
// is released.
func (a *App) Init() (err error) {
	if err := a.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := a.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	a.closers = append(a.closers, a.lock.Unlock)

	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	if err := a.initRecorder(); err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	if err := a.initAlert(); err != nil {
		return fmt.Errorf("alert: %w", err)
	}
	if err := a.initPipeline(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := a.initWeb(); err != nil {
		return fmt.Errorf("web: %w", err)
	}
	if err := a.wireState(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	a.logger.Info("sentinel initialized",
		"camera", a.cfg.Camera.Device,
		"data_dir", a.cfg.Storage.DataDir,
		"alert", a.alertMode(),
		"web", a.Addr(),
	)
	return nil
}

func (a *App) initRecorder() error {
	events, err := recorder.OpenCSVLog(a.cfg.EventLogPath())
	if err != nil {
		return err
	}
	snapshots, err := recorder.OpenSnapshotDir(a.cfg.SnapshotPath())
	if err != nil {
		return err
	}

	var extra []recorder.EventLog
	if a.cfg.Storage.Database {
		store, err := recorder.OpenStore(a.cfg.DatabasePath())
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
		extra = append(extra, store)
	}
	a.recorder = recorder.New(snapshots, events, extra...)

	if a.cfg.Storage.QueueSize > 0 {
		a.async = recorder.NewAsync(a.recorder, a.cfg.Storage.QueueSize, a.logger)
	}
	return nil
}

func (a *App) initAlert() error {
	if a.opts.NoAlert || !a.cfg.Alert.Enabled {
		return nil
	}

	backend := a.opts.AlertBackend
	if backend == nil {
		if a.opts.Silent || a.cfg.Alert.Silent {
			backend = alert.NewMockBackend(time.Duration(a.cfg.Alert.SilentMS) * time.Millisecond)
		} else {
			sound, err := alert.NewSoundBackend(a.cfg.Alert.Sound)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, sound.Close)
			backend = sound
		}
	}

	player, err := alert.NewPlayer(a.cfg.AlertConfig(), backend, a.logger)
	if err != nil {
		return err
	}
	a.player = player
	return nil
}

func (a *App) initPipeline() error {
	a.source = a.opts.Source
	if a.source == nil {
		src, err := capture.Open(a.cfg.CaptureConfig(), a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, src.Close)
		a.capture = src
		a.source = src
	}

	a.detector = a.opts.Detector
	if a.detector == nil {
		det, err := vision.NewDetector(a.cfg.VisionConfig(), a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, det.Close)
		a.detector = det
	}
	return nil
}

func (a *App) initWeb() error {
	if !a.cfg.Server.Enabled {
		return nil
	}
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return err
	}
	a.listener = ln
	a.closers = append(a.closers, func() error {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})
	a.webServer = web.NewServer(a.cfg.WebConfig(), a.recorder, a.logger)
	return nil
}

// wireState builds the controller and engine, and routes their transitions
// to the dashboard.
func (a *App) wireState() error {
	var rec motion.Recorder = a.recorder
	if a.async != nil {
		rec = a.async
	}
	var alerter motion.Alerter = noAlert{}
	if a.player != nil {
		alerter = a.player
	}

	a.controller = motion.NewController(rec, alerter,
		motion.WithLogger(a.logger),
		motion.WithTransitionHook(a.onTransition),
	)

	opts := []motion.EngineOption{motion.WithEngineLogger(a.logger)}
	if a.webServer != nil {
		opts = append(opts, motion.WithFrameSink(a.webServer))
	}
	engine, err := motion.NewEngine(a.cfg.EngineConfig(), a.source, a.detector, a.controller, opts...)
	if err != nil {
		return err
	}
	a.engine = engine

	if a.webServer == nil {
		return nil
	}
	a.webServer.Stats = a.engine.Stats
	a.webServer.Health = a.health
	if a.player != nil {
		a.player.OnStatusChange = func(s alert.Status) {
			a.webServer.UpdateState(func(st *web.State) { st.AlertStatus = s.String() })
		}
	} else {
		a.webServer.UpdateState(func(st *web.State) { st.AlertStatus = "disabled" })
	}
	return nil
}

// health collects the counters of whichever side-effect components exist.
func (a *App) health() web.Health {
	var h web.Health
	if a.capture != nil {
		h.CaptureReads, h.CaptureDropped, h.CaptureReopens = a.capture.Stats()
	}
	if a.player != nil {
		h.AlertPlays = a.player.Plays()
		h.AlertFailures = a.player.Failures()
	}
	if a.async != nil {
		h.RecordsWritten, h.RecordsFailed, h.RecordsDropped = a.async.Stats()
	}
	return h
}

func (a *App) onTransition(t motion.Transition) {
	if a.webServer == nil {
		return
	}
	a.webServer.UpdateState(func(st *web.State) {
		st.MotionDetected = t.To == motion.Active
		if t.Episode != nil {
			st.Episodes = t.Episode.Seq
			st.LastEpisode = t.Episode.Start.Format(recorder.TimestampLayout)
		}
	})
}

// Run serves the dashboard and runs detection cycles until ctx is
// cancelled or the dashboard stops serving. Either way the engine has
// stopped when Run returns. It does not release resources; call Shutdown
// afterwards.
func (a *App) Run(ctx context.Context) error {
	if a.engine == nil {
		return errors.New("sentinel: Run called before Init")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	if a.webServer != nil {
		go func() {
			serveErr <- a.webServer.Serve(a.listener)
		}()
	}

	engineErr := make(chan error, 1)
	go func() {
		engineErr <- a.engine.Run(ctx)
	}()

	select {
	case err := <-engineErr:
		return err
	case err := <-serveErr:
		cancel()
		<-engineErr
		if err != nil {
			return fmt.Errorf("%w: %w", ErrServerStopped, err)
		}
		return ErrServerStopped
	}
}

// Shutdown stops the cue, drains pending recordings, stops the dashboard,
// and releases the camera and the lock. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.shutdownOnce.Do(func() {
		if a.player != nil {
			if err := a.player.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop alert: %w", err))
			}
		}
		if a.async != nil {
			if err := a.async.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("drain recorder: %w", err))
			}
		}
		if a.webServer != nil {
			if err := a.webServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop web: %w", err))
			}
		}
		if err := a.closeAll(); err != nil {
			errs = append(errs, err)
		}
		a.logger.Info("sentinel stopped", "episodes", a.Episodes())
	})
	return errors.Join(errs...)
}

// closeAll runs closers in reverse order of acquisition.
func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Addr returns the dashboard listen address, or "" when disabled.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Stats returns the engine counters.
func (a *App) Stats() motion.Stats {
	if a.engine == nil {
		return motion.Stats{}
	}
	return a.engine.Stats()
}

// Episodes returns the number of episodes started since Init.
func (a *App) Episodes() uint64 {
	if a.controller == nil {
		return 0
	}
	return a.controller.Episodes()
}

// Web returns the dashboard server, or nil when disabled.
func (a *App) Web() *web.Server {
	return a.webServer
}

// Store returns the SQLite episode store, or nil when disabled.
func (a *App) Store() *recorder.Store {
	return a.store
}

func (a *App) alertMode() string {
	switch {
	case a.player == nil:
		return "disabled"
	case a.opts.AlertBackend != nil:
		return "custom"
	case a.opts.Silent || a.cfg.Alert.Silent:
		return "silent"
	default:
		return a.cfg.Alert.Sound
	}
}

// noAlert is the alerter used with --no-alert.
type noAlert struct{}

func (noAlert) Trigger() bool { return false }
