package recorder

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const csvHeader = "timestamp"

// CSVLog is an EventLog backed by a single-column CSV file.
type CSVLog struct {
	path string
	mu   sync.Mutex
}

// OpenCSVLog opens path, creating it with a header row if it does not exist.
func OpenCSVLog(path string) (*CSVLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	switch {
	case errors.Is(err, os.ErrExist):
	case err != nil:
		return nil, fmt.Errorf("create event log: %w", err)
	default:
		w := csv.NewWriter(f)
		werr := w.Write([]string{csvHeader})
		w.Flush()
		if werr == nil {
			werr = w.Error()
		}
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return nil, fmt.Errorf("write event log header: %w", werr)
		}
	}

	return &CSVLog{path: path}, nil
}

// Path returns the log file path.
func (l *CSVLog) Path() string {
	return l.path
}

// Append adds a row for ts.
func (l *CSVLog) Append(ctx context.Context, ts time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{ts.Format(TimestampLayout)}); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Recent returns up to n of the last timestamps, oldest first. Rows that do
// not parse are skipped.
func (l *CSVLog) Recent(ctx context.Context, n int) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var all []time.Time
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read event log: %w", err)
		}
		if len(rec) == 0 || rec[0] == csvHeader {
			continue
		}
		ts, err := time.ParseInLocation(TimestampLayout, rec[0], time.Local)
		if err != nil {
			continue
		}
		all = append(all, ts)
	}

	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}
