package alert

import (
	"sync"
	"time"
)

// MockBackend is a silent backend for testing and for running without audio.
// After Start it reports busy until Finish is called or, when playFor is
// positive, until that much time has passed.
type MockBackend struct {
	playFor time.Duration

	mu        sync.Mutex
	busy      bool
	startedAt time.Time
	starts    int
	stops     int
	startErr  error
}

// NewMockBackend creates a mock that plays for playFor (0 = until Finish).
func NewMockBackend(playFor time.Duration) *MockBackend {
	return &MockBackend{playFor: playFor}
}

// FailStart makes subsequent Start calls return err.
func (m *MockBackend) FailStart(err error) {
	m.mu.Lock()
	m.startErr = err
	m.mu.Unlock()
}

// Start records the call and becomes busy.
func (m *MockBackend) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr != nil {
		return m.startErr
	}
	m.busy = true
	m.startedAt = time.Now()
	return nil
}

// Busy reports whether the simulated cue is still playing.
func (m *MockBackend) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy && m.playFor > 0 && time.Since(m.startedAt) >= m.playFor {
		m.busy = false
	}
	return m.busy
}

// Stop ends the simulated cue.
func (m *MockBackend) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.busy = false
	return nil
}

// Finish ends the simulated cue as if it played to completion.
func (m *MockBackend) Finish() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

// Starts returns the number of Start calls.
func (m *MockBackend) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Stops returns the number of Stop calls.
func (m *MockBackend) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}
