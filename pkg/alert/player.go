package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Player plays the alert cue, at most one at a time.
type Player struct {
	cfg     Config
	backend Backend
	logger  *slog.Logger

	mu       sync.Mutex
	status   Status
	closed   bool
	plays    uint64
	failures uint64
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// OnStatusChange is called with every new status while the player's
	// lock is held. It must not call back into the Player.
	OnStatusChange func(Status)
}

// NewPlayer creates a player in the Idle state.
func NewPlayer(cfg Config, backend Backend, logger *slog.Logger) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		cfg:     cfg,
		backend: backend,
		logger:  logger,
		status:  Idle,
	}, nil
}

// Trigger starts the cue if the player is Idle and reports whether it did.
// It never blocks on playback. While a cue is playing, or after Close, the
// request is dropped.
func (p *Player) Trigger() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.status == Playing {
		return false
	}

	p.plays++
	p.stopCh = make(chan struct{})
	p.setStatusLocked(Playing)
	p.wg.Add(1)
	go p.play(p.stopCh)
	return true
}

// play runs one cue to completion. The player always returns to Idle.
func (p *Player) play(stop <-chan struct{}) {
	defer p.wg.Done()
	defer p.finish()

	started := time.Now()
	if err := p.backend.Start(); err != nil {
		p.mu.Lock()
		p.failures++
		p.mu.Unlock()
		p.logger.Error("alert playback failed to start", "error", err)
		return
	}
	p.logger.Debug("alert playback started")

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	watchdog := time.NewTimer(p.cfg.MaxDuration)
	defer watchdog.Stop()

	for {
		select {
		case <-stop:
			p.stopBackend("shutdown")
			return
		case <-watchdog.C:
			p.logger.Warn("alert playback exceeded max duration", "max", p.cfg.MaxDuration)
			p.stopBackend("watchdog")
			return
		case <-ticker.C:
			if !p.backend.Busy() {
				p.logger.Debug("alert playback finished", "elapsed", time.Since(started).Round(time.Millisecond))
				return
			}
		}
	}
}

func (p *Player) stopBackend(reason string) {
	if err := p.backend.Stop(); err != nil {
		p.logger.Warn("failed to stop alert playback", "reason", reason, "error", err)
	}
}

func (p *Player) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopCh = nil
	p.setStatusLocked(Idle)
}

func (p *Player) setStatusLocked(s Status) {
	p.status = s
	if p.OnStatusChange != nil {
		p.OnStatusChange(s)
	}
}

// Status returns the current playback status.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Playing reports whether a cue is in flight.
func (p *Player) Playing() bool {
	return p.Status() == Playing
}

// Plays returns how many cues have been started.
func (p *Player) Plays() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

// Failures returns how many cues failed to start.
func (p *Player) Failures() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// Wait blocks until the in-flight cue, if any, has finished.
func (p *Player) Wait() {
	p.wg.Wait()
}

// Stop refuses further triggers and waits for the in-flight cue. If ctx is
// done first the cue is stopped and ctx's error is returned.
func (p *Player) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	stop := p.stopCh
	p.stopCh = nil
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	if stop != nil {
		close(stop)
	}
	<-done
	return ctx.Err()
}

// Close stops the player, allowing the in-flight cue the configured grace.
func (p *Player) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.StopGrace)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		p.logger.Warn("alert playback stopped before completion", "grace", p.cfg.StopGrace)
	}
	return nil
}
