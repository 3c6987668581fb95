package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		PollInterval: time.Millisecond,
		MaxDuration:  5 * time.Second,
		StopGrace:    50 * time.Millisecond,
	}
}

func newTestPlayer(t *testing.T, cfg Config, backend Backend) (*Player, *[]Status) {
	t.Helper()
	p, err := NewPlayer(cfg, backend, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewPlayer() error = %v", err)
	}
	var statuses []Status
	p.OnStatusChange = func(s Status) {
		statuses = append(statuses, s)
	}
	t.Cleanup(func() { p.Close() })
	return p, &statuses
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPlayer_RapidTriggersStartOnePlayback(t *testing.T) {
	backend := NewMockBackend(0)
	p, statuses := newTestPlayer(t, testConfig(), backend)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.Trigger() {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := accepted.Load(); got != 1 {
		t.Fatalf("accepted triggers = %d, want 1", got)
	}
	waitFor(t, func() bool { return backend.Starts() == 1 })
	if p.Status() != Playing {
		t.Errorf("status = %v, want playing", p.Status())
	}

	backend.Finish()
	p.Wait()

	if backend.Starts() != 1 {
		t.Errorf("backend starts = %d, want 1", backend.Starts())
	}
	if p.Status() != Idle {
		t.Errorf("status = %v, want idle", p.Status())
	}
	want := []Status{Playing, Idle}
	if len(*statuses) != len(want) || (*statuses)[0] != want[0] || (*statuses)[1] != want[1] {
		t.Errorf("status transitions = %v, want %v", *statuses, want)
	}
}

func TestPlayer_TriggerWhilePlayingIsSwallowed(t *testing.T) {
	backend := NewMockBackend(0)
	p, _ := newTestPlayer(t, testConfig(), backend)

	if !p.Trigger() {
		t.Fatal("first trigger should start playback")
	}
	for i := 0; i < 3; i++ {
		if p.Trigger() {
			t.Fatalf("trigger %d during playback should be dropped", i+2)
		}
	}

	waitFor(t, func() bool { return backend.Starts() == 1 })
	backend.Finish()
	p.Wait()

	if backend.Starts() != 1 {
		t.Errorf("dropped triggers must not be replayed: starts = %d", backend.Starts())
	}
	if !p.Trigger() {
		t.Error("trigger after playback finished should start a new cue")
	}
	waitFor(t, func() bool { return backend.Starts() == 2 })
	backend.Finish()
	p.Wait()
	if p.Plays() != 2 {
		t.Errorf("Plays() = %d, want 2", p.Plays())
	}
}

func TestPlayer_TriggerDoesNotBlock(t *testing.T) {
	p, _ := newTestPlayer(t, testConfig(), NewMockBackend(0))

	start := time.Now()
	p.Trigger()
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Trigger() took %v", elapsed)
	}
}

func TestPlayer_StartFailureReturnsToIdle(t *testing.T) {
	backend := NewMockBackend(0)
	backend.FailStart(errors.New("no audio device"))
	p, statuses := newTestPlayer(t, testConfig(), backend)

	if !p.Trigger() {
		t.Fatal("Trigger() = false, want true")
	}
	p.Wait()

	if p.Status() != Idle {
		t.Errorf("status = %v, want idle after failed start", p.Status())
	}
	if p.Failures() != 1 {
		t.Errorf("Failures() = %d, want 1", p.Failures())
	}
	if len(*statuses) != 2 || (*statuses)[1] != Idle {
		t.Errorf("status transitions = %v, want [playing idle]", *statuses)
	}
	if !p.Trigger() {
		t.Error("player should accept a new trigger after a failed start")
	}
}

func TestPlayer_WatchdogStopsStuckPlayback(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDuration = 20 * time.Millisecond
	backend := NewMockBackend(0)
	p, _ := newTestPlayer(t, cfg, backend)

	p.Trigger()
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not end playback")
	}
	if backend.Stops() != 1 {
		t.Errorf("backend stops = %d, want 1", backend.Stops())
	}
	if p.Status() != Idle {
		t.Errorf("status = %v, want idle", p.Status())
	}
}

func TestPlayer_StopWaitsForCue(t *testing.T) {
	backend := NewMockBackend(10 * time.Millisecond)
	p, _ := newTestPlayer(t, testConfig(), backend)

	p.Trigger()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if backend.Stops() != 0 {
		t.Errorf("cue finishing within grace should not be killed: stops = %d", backend.Stops())
	}
	if p.Trigger() {
		t.Error("Trigger() after Stop should be refused")
	}
}

func TestPlayer_StopForcesAfterGrace(t *testing.T) {
	backend := NewMockBackend(0)
	p, _ := newTestPlayer(t, testConfig(), backend)

	p.Trigger()
	waitFor(t, func() bool { return backend.Starts() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Stop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop() error = %v, want deadline exceeded", err)
	}
	if backend.Stops() != 1 {
		t.Errorf("backend stops = %d, want 1", backend.Stops())
	}
	if p.Status() != Idle {
		t.Errorf("status = %v, want idle", p.Status())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, true},
		{"zero max", func(c *Config) { c.MaxDuration = 0 }, true},
		{"max below poll", func(c *Config) { c.MaxDuration = time.Millisecond }, true},
		{"negative grace", func(c *Config) { c.StopGrace = -time.Second }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestCommandBackend_Lifecycle(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	b := NewCommandBackend("sleep", "5")
	if b.Busy() {
		t.Fatal("Busy() before Start should be false")
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !b.Busy() {
		t.Error("Busy() should be true while the process runs")
	}
	if err := b.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if b.Busy() {
		t.Error("Busy() should be false after Stop")
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
}

func TestCommandBackend_MissingProgram(t *testing.T) {
	b := NewCommandBackend("definitely-not-a-real-player-binary")
	if err := b.Start(); err == nil {
		t.Error("Start() should fail for a missing program")
	}
	if b.Busy() {
		t.Error("Busy() should be false after a failed start")
	}
}

func TestNewSoundBackend_RequiresPath(t *testing.T) {
	if _, err := NewSoundBackend(""); !errors.Is(err, ErrNoSound) {
		t.Errorf("NewSoundBackend(\"\") error = %v, want ErrNoSound", err)
	}
}
