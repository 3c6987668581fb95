// Package alert plays a fixed alert cue without ever blocking the caller.
//
// A Player owns a two-state status (Idle, Playing). Trigger starts a cue only
// when Idle; a trigger while a cue is already playing is swallowed, not
// queued. Playback runs on its own goroutine, which polls the Backend until it
// reports not busy and then returns the Player to Idle.
//
// Backends:
//   - CommandBackend - an external player process (gst-launch-1.0 by default)
//   - MockBackend - no audio, for CI and the --silent mode
package alert

import (
	"fmt"
	"time"
)

// Status is the playback status of a Player.
type Status int

const (
	// Idle means no cue is playing.
	Idle Status = iota
	// Playing means a cue is in flight.
	Playing
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Backend produces the actual cue.
type Backend interface {
	// Start begins playback and returns immediately.
	Start() error
	// Busy reports whether the cue started by the last Start is still playing.
	Busy() bool
	// Stop aborts playback.
	Stop() error
}

// Config holds player timing.
type Config struct {
	// PollInterval is how often the playback goroutine checks Backend.Busy.
	// Default: 100ms
	PollInterval time.Duration `json:"poll_interval"`

	// MaxDuration bounds a single playback. When exceeded the backend is
	// stopped and the player returns to Idle.
	// Default: 30s
	MaxDuration time.Duration `json:"max_duration"`

	// StopGrace is how long Close lets an in-flight cue finish before
	// stopping it.
	// Default: 2s
	StopGrace time.Duration `json:"stop_grace"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 100 * time.Millisecond,
		MaxDuration:  30 * time.Second,
		StopGrace:    2 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("max duration must be positive, got %v", c.MaxDuration)
	}
	if c.MaxDuration < c.PollInterval {
		return fmt.Errorf("max duration %v shorter than poll interval %v", c.MaxDuration, c.PollInterval)
	}
	if c.StopGrace < 0 {
		return fmt.Errorf("stop grace must not be negative, got %v", c.StopGrace)
	}
	return nil
}
