// Package recorder persists motion episodes: an append-only event log, a
// JPEG snapshot per episode, and an optional SQLite index of both.
//
// Storage layout under the data directory:
//
//	motion_events.csv              one "timestamp" row per episode
//	screenshots/motion_<ts>.jpg    annotated frame at episode start
//	sentinel.db                    episodes(id, started_at, snapshot)
package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the format used in the CSV log and snapshot names.
const TimestampLayout = "2006-01-02_15-04-05"

// EventLog is an append-only record of episode start times.
type EventLog interface {
	Append(ctx context.Context, ts time.Time) error
	// Recent returns up to n of the latest timestamps, oldest first.
	Recent(ctx context.Context, n int) ([]time.Time, error)
}

// SnapshotStore persists episode snapshots and returns the stored name.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, ts time.Time, jpeg []byte) (string, error)
}

// SnapshotIndexer is implemented by logs that track which snapshot belongs
// to which episode.
type SnapshotIndexer interface {
	AttachSnapshot(ctx context.Context, ts time.Time, name string) error
}

// Recorder fans episode starts out to one or more event logs and writes the
// snapshot to a SnapshotStore. The first log is the primary one and answers
// Recent.
type Recorder struct {
	logs      []EventLog
	snapshots SnapshotStore
}

// New creates a recorder. snapshots may be nil to disable snapshots.
func New(snapshots SnapshotStore, primary EventLog, more ...EventLog) *Recorder {
	return &Recorder{
		logs:      append([]EventLog{primary}, more...),
		snapshots: snapshots,
	}
}

// Append writes ts to every log. All logs are attempted; failures are joined.
func (r *Recorder) Append(ctx context.Context, ts time.Time) error {
	var errs []error
	for _, l := range r.logs {
		if err := l.Append(ctx, ts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveSnapshot stores jpeg and links it to the episode in any log that
// indexes snapshots.
func (r *Recorder) SaveSnapshot(ctx context.Context, ts time.Time, jpeg []byte) error {
	if r.snapshots == nil {
		return nil
	}
	name, err := r.snapshots.SaveSnapshot(ctx, ts, jpeg)
	if err != nil {
		return err
	}

	var errs []error
	for _, l := range r.logs {
		idx, ok := l.(SnapshotIndexer)
		if !ok {
			continue
		}
		if err := idx.AttachSnapshot(ctx, ts, name); err != nil {
			errs = append(errs, fmt.Errorf("index snapshot %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Recent returns the latest n timestamps from the primary log.
func (r *Recorder) Recent(ctx context.Context, n int) ([]time.Time, error) {
	return r.logs[0].Recent(ctx, n)
}

// FormatTimestamps renders ts with TimestampLayout.
func FormatTimestamps(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Format(TimestampLayout)
	}
	return out
}
