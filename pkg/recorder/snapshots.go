package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// maxSuffix bounds the search for a free name within one second.
const maxSuffix = 1000

// SnapshotDir writes snapshots as motion_<timestamp>.jpg files.
type SnapshotDir struct {
	dir string
}

// OpenSnapshotDir creates dir if needed.
func OpenSnapshotDir(dir string) (*SnapshotDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &SnapshotDir{dir: dir}, nil
}

// Dir returns the snapshot directory.
func (s *SnapshotDir) Dir() string {
	return s.dir
}

// SnapshotName returns the base file name for a snapshot taken at ts.
func SnapshotName(ts time.Time) string {
	return "motion_" + ts.Format(TimestampLayout) + ".jpg"
}

// SaveSnapshot writes jpeg and returns the file's base name. A second
// snapshot in the same second gets a numeric suffix instead of replacing the
// first.
func (s *SnapshotDir) SaveSnapshot(ctx context.Context, ts time.Time, jpeg []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(jpeg) == 0 {
		return "", ErrEmptySnapshot
	}

	stem := "motion_" + ts.Format(TimestampLayout)
	for i := 0; i < maxSuffix; i++ {
		name := SnapshotName(ts)
		if i > 0 {
			name = fmt.Sprintf("%s_%d.jpg", stem, i)
		}

		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create snapshot: %w", err)
		}

		_, werr := f.Write(jpeg)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("write snapshot %s: %w", name, werr)
		}
		return name, nil
	}
	return "", fmt.Errorf("no free snapshot name for %s", stem)
}
