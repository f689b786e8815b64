package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
)

// Run statuses recorded in the ledger.
const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunRecord is one row of the indexing run ledger.
type RunRecord struct {
	ID            string    `db:"id"`
	RepoName      string    `db:"repo_name"`
	RepoPath      string    `db:"repo_path"`
	Kind          string    `db:"kind"`
	Status        string    `db:"status"`
	Files         int       `db:"files"`
	SkippedFiles  int       `db:"skipped_files"`
	Nodes         int       `db:"nodes"`
	Edges         int       `db:"edges"`
	VerifiedEdges int       `db:"verified_edges"`
	Error         string    `db:"error"`
	StartedAt     time.Time `db:"started_at"`
	FinishedAt    time.Time `db:"finished_at"`
}

// RunStore persists the ledger of indexing runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	RecentRuns(ctx context.Context, repoName string, limit int) ([]*RunRecord, error)
	Close() error
}

// NewRunStore picks the backend from configuration: a PostgreSQL DSN
// when set, otherwise a local SQLite file.
// The error path returns a nil interface, not a typed-nil pointer,
// so callers can keep the value and rely on == nil checks.
func NewRunStore(databaseURL, sqlitePath string, log *slog.Logger) (RunStore, error) {
	if databaseURL != "" {
		store, err := NewPostgresRunStore(databaseURL, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := NewSQLiteRunStore(sqlitePath, log)
	if err != nil {
		return nil, err
	}
	return store, nil
}
