package motion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRecorder records calls and can be told to fail.
type fakeRecorder struct {
	mu          sync.Mutex
	appends     []time.Time
	snapshots   []time.Time
	appendErr   error
	snapshotErr error
}

func (r *fakeRecorder) Append(_ context.Context, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appends = append(r.appends, ts)
	return r.appendErr
}

func (r *fakeRecorder) SaveSnapshot(_ context.Context, ts time.Time, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, ts)
	return r.snapshotErr
}

// fakeAlerter mimics the player's dedup: Trigger succeeds only when idle.
type fakeAlerter struct {
	mu       sync.Mutex
	playing  bool
	triggers int
	started  int
}

func (a *fakeAlerter) Trigger() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.triggers++
	if a.playing {
		return false
	}
	a.playing = true
	a.started++
	return true
}

func (a *fakeAlerter) finish() {
	a.mu.Lock()
	a.playing = false
	a.mu.Unlock()
}

// fakeFrame carries the motion decision the fake detector will return.
type fakeFrame struct {
	motion bool
	closed *int
}

func (f *fakeFrame) Close() error {
	if f.closed != nil {
		*f.closed++
	}
	return nil
}

// step is one scripted source read: a frame, or an unavailable read.
type step struct {
	motion      bool
	unavailable bool
}

func frames(motion bool, n int) []step {
	out := make([]step, n)
	for i := range out {
		out[i] = step{motion: motion}
	}
	return out
}

func stalls(n int) []step {
	out := make([]step, n)
	for i := range out {
		out[i] = step{unavailable: true}
	}
	return out
}

func script(parts ...[]step) []step {
	var out []step
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

type scriptedSource struct {
	steps  []step
	pos    int
	closed int
}

var errScriptDone = errors.New("script exhausted")

func (s *scriptedSource) Next(context.Context) (Frame, error) {
	if s.pos >= len(s.steps) {
		return nil, errScriptDone
	}
	st := s.steps[s.pos]
	s.pos++
	if st.unavailable {
		return nil, ErrFrameUnavailable
	}
	return &fakeFrame{motion: st.motion, closed: &s.closed}, nil
}

func (s *scriptedSource) done() bool {
	return s.pos >= len(s.steps)
}

type fakeDetector struct {
	err error
}

func (d *fakeDetector) Detect(f Frame) (Detection, error) {
	if d.err != nil {
		return Detection{}, d.err
	}
	ff := f.(*fakeFrame)
	det := Detection{Motion: ff.motion, Annotated: []byte{0xFF, 0xD8}}
	if ff.motion {
		det.Regions = []Region{{X: 10, Y: 10, Width: 60, Height: 60, Area: 3600}}
	}
	return det, nil
}

type countingSink struct {
	mu     sync.Mutex
	frames int
}

func (s *countingSink) PublishFrame([]byte) {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}
