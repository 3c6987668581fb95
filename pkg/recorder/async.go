package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-sentinel/pkg/motion"
)

// DefaultQueueSize is the Async queue capacity when none is given.
const DefaultQueueSize = 64

type op struct {
	ts       time.Time
	jpeg     []byte
	snapshot bool
}

// Async moves recorder writes off the caller's goroutine. Enqueueing never
// blocks: when the queue is full the write is dropped and ErrQueueFull
// returned.
type Async struct {
	inner  motion.Recorder
	logger *slog.Logger
	queue  chan op

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	written atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewAsync starts a worker that forwards writes to inner.
func NewAsync(inner motion.Recorder, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		inner:  inner,
		logger: logger,
		queue:  make(chan op, size),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	ctx := context.Background()
	for o := range a.queue {
		var err error
		if o.snapshot {
			err = a.inner.SaveSnapshot(ctx, o.ts, o.jpeg)
		} else {
			err = a.inner.Append(ctx, o.ts)
		}
		if err != nil {
			a.failed.Add(1)
			a.logger.Error("recorder write failed",
				"snapshot", o.snapshot,
				"at", o.ts.Format(TimestampLayout),
				"error", err,
			)
			continue
		}
		a.written.Add(1)
	}
}

func (a *Async) enqueue(o op) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- o:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

// Append queues an event log write.
func (a *Async) Append(_ context.Context, ts time.Time) error {
	return a.enqueue(op{ts: ts})
}

// SaveSnapshot queues a snapshot write.
func (a *Async) SaveSnapshot(_ context.Context, ts time.Time, jpeg []byte) error {
	if len(jpeg) == 0 {
		return ErrEmptySnapshot
	}
	return a.enqueue(op{ts: ts, jpeg: jpeg, snapshot: true})
}

// Stats returns write counters.
func (a *Async) Stats() (written, failed, dropped uint64) {
	return a.written.Load(), a.failed.Load(), a.dropped.Load()
}

// Close stops accepting writes and waits for queued ones to finish or ctx
// to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		a.logger.Warn("recorder queue not drained", "pending", len(a.queue))
		return ctx.Err()
	}
}
