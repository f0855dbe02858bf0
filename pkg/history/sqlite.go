// Package history persists discovery-run records to SQLite so operators
// can review what was queried, with what bounds, and what came back.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Run is one recorded discovery run.
type Run struct {
	RunID     string        `json:"run_id"`
	Source    string        `json:"source"`
	Target    string        `json:"target"`
	MaxDepth  int           `json:"max_depth"`
	Quick     bool          `json:"quick"`
	Status    string        `json:"status"`
	Paths     int           `json:"paths"`
	Entities  int           `json:"entities"`
	Edges     int           `json:"edges"`
	Warnings  int           `json:"warnings"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Store manages the SQLite connection and schema.
type Store struct {
	db *sql.DB
}

// NewStore opens (and if needed creates) the run-history database.
// WAL mode keeps concurrent readers cheap.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		max_depth INTEGER NOT NULL,
		quick INTEGER NOT NULL,
		status TEXT NOT NULL,
		paths INTEGER NOT NULL,
		entities INTEGER NOT NULL,
		edges INTEGER NOT NULL,
		warnings INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(query)
	return err
}

// RecordRun inserts one run record. A missing RunID gets a fresh UUID.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, source, target, max_depth, quick, status,
			paths, entities, edges, warnings, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Source, run.Target, run.MaxDepth, run.Quick, run.Status,
		run.Paths, run.Entities, run.Edges, run.Warnings,
		run.StartedAt, run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, source, target, max_depth, quick, status,
			paths, entities, edges, warnings, started_at, duration_ms
		FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			durationMs int64
		)
		if err := rows.Scan(&run.RunID, &run.Source, &run.Target, &run.MaxDepth,
			&run.Quick, &run.Status, &run.Paths, &run.Entities, &run.Edges,
			&run.Warnings, &run.StartedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
