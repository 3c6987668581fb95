package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DatabaseFile is the store's file name inside the data directory.
const DatabaseFile = "sentinel.db"

// Episode is a stored episode row.
type Episode struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Snapshot  string    `json:"snapshot,omitempty"`
}

// Store is an EventLog and SnapshotIndexer backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens or creates the database at path and applies migrations.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append inserts a new episode row.
func (s *Store) Append(ctx context.Context, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes (id, started_at, started_unix_ms) VALUES (?, ?, ?)`,
		uuid.NewString(),
		ts.Format(time.RFC3339Nano),
		ts.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

// AttachSnapshot records name on the latest episode started at ts.
func (s *Store) AttachSnapshot(ctx context.Context, ts time.Time, name string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE episodes SET snapshot = ?
		 WHERE id = (
		     SELECT id FROM episodes
		     WHERE started_unix_ms = ? AND snapshot IS NULL
		     ORDER BY rowid DESC LIMIT 1
		 )`,
		name,
		ts.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("attach snapshot: %w", err)
	}
	return nil
}

// Recent returns up to n of the latest start times, oldest first.
func (s *Store) Recent(ctx context.Context, n int) ([]time.Time, error) {
	episodes, err := s.List(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(episodes))
	for i, ep := range episodes {
		out[len(episodes)-1-i] = ep.StartedAt
	}
	return out, nil
}

// List returns up to limit episodes, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Episode, error) {
	query := `SELECT id, started_at, snapshot FROM episodes ORDER BY started_unix_ms DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var (
			ep       Episode
			started  string
			snapshot sql.NullString
		)
		if err := rows.Scan(&ep.ID, &started, &snapshot); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		ep.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", started, err)
		}
		ep.Snapshot = snapshot.String
		episodes = append(episodes, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episodes: %w", err)
	}
	return episodes, nil
}

// Count returns the number of stored episodes.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM episodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count episodes: %w", err)
	}
	return n, nil
}
