package alert

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
)

// DefaultPlayerCommand is the external program used to play the cue.
const DefaultPlayerCommand = "gst-launch-1.0"

// CommandBackend plays the cue by running an external player process.
type CommandBackend struct {
	name string
	args []string

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
	closed bool
}

// NewCommandBackend runs name with args for every cue.
func NewCommandBackend(name string, args ...string) *CommandBackend {
	return &CommandBackend{name: name, args: args}
}

// NewSoundBackend plays the audio file at path through GStreamer's playbin.
func NewSoundBackend(path string) (*CommandBackend, error) {
	if path == "" {
		return nil, ErrNoSound
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sound path: %w", err)
	}
	return NewCommandBackend(DefaultPlayerCommand, "-q", "playbin", "uri=file://"+filepath.ToSlash(abs)), nil
}

// Start launches the player process.
func (b *CommandBackend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.cmd != nil && !b.exitedLocked() {
		return nil
	}

	cmd := exec.Command(b.name, b.args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", b.name, err)
	}

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	b.cmd = cmd
	b.exited = exited
	return nil
}

// Busy reports whether the player process is still running.
func (b *CommandBackend) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cmd != nil && !b.exitedLocked()
}

func (b *CommandBackend) exitedLocked() bool {
	select {
	case <-b.exited:
		return true
	default:
		return false
	}
}

// Stop kills the player process and waits for it to exit.
func (b *CommandBackend) Stop() error {
	b.mu.Lock()
	cmd, exited := b.cmd, b.exited
	b.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	select {
	case <-exited:
		return nil
	default:
	}
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill %s: %w", b.name, err)
	}
	<-exited
	return nil
}

// Close stops any running process and rejects further starts.
func (b *CommandBackend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.Stop()
}
