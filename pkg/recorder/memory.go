package recorder

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory recorder for tests and dry runs.
type Memory struct {
	mu          sync.Mutex
	events      []time.Time
	snapshots   map[string][]byte
	appendErr   error
	snapshotErr error
}

// NewMemory creates an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{snapshots: make(map[string][]byte)}
}

// FailAppend makes Append return err (nil restores normal behaviour).
func (m *Memory) FailAppend(err error) {
	m.mu.Lock()
	m.appendErr = err
	m.mu.Unlock()
}

// FailSnapshot makes SaveSnapshot return err (nil restores normal behaviour).
func (m *Memory) FailSnapshot(err error) {
	m.mu.Lock()
	m.snapshotErr = err
	m.mu.Unlock()
}

// Append records ts.
func (m *Memory) Append(_ context.Context, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.events = append(m.events, ts)
	return nil
}

// SaveSnapshot stores a copy of jpeg under its snapshot name.
func (m *Memory) SaveSnapshot(_ context.Context, ts time.Time, jpeg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshotErr != nil {
		return m.snapshotErr
	}
	if len(jpeg) == 0 {
		return ErrEmptySnapshot
	}
	m.snapshots[SnapshotName(ts)] = append([]byte(nil), jpeg...)
	return nil
}

// Recent returns up to n of the latest events, oldest first.
func (m *Memory) Recent(_ context.Context, n int) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 {
		return nil, nil
	}
	start := max(len(m.events)-n, 0)
	return append([]time.Time(nil), m.events[start:]...), nil
}

// Events returns all recorded events.
func (m *Memory) Events() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.events...)
}

// Snapshot returns the stored image for name.
func (m *Memory) Snapshot(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.snapshots[name]
	return b, ok
}

// SnapshotCount returns how many snapshots are stored.
func (m *Memory) SnapshotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}
