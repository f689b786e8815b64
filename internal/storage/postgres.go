package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresRunStore keeps the run ledger in PostgreSQL, for shared
// deployments where several machines index into the same graph.
type PostgresRunStore struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewPostgresRunStore connects to the database at dsn.
func NewPostgresRunStore(dsn string, log *slog.Logger) (*PostgresRunStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PostgresRunStore{db: db, log: log}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *PostgresRunStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		repo_name TEXT NOT NULL,
		repo_path TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		files INTEGER,
		skipped_files INTEGER,
		nodes INTEGER,
		edges INTEGER,
		verified_edges INTEGER,
		error TEXT,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_runs_repo ON runs(repo_name, started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *PostgresRunStore) SaveRun(ctx context.Context, run *RunRecord) error {
	query := `
		INSERT INTO runs
		(id, repo_name, repo_path, kind, status, files, skipped_files,
		 nodes, edges, verified_edges, error, started_at, finished_at)
		VALUES (:id, :repo_name, :repo_path, :kind, :status, :files, :skipped_files,
		 :nodes, :edges, :verified_edges, :error, :started_at, :finished_at)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			files = EXCLUDED.files,
			skipped_files = EXCLUDED.skipped_files,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			verified_edges = EXCLUDED.verified_edges,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var run RunRecord
	err := s.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

func (s *PostgresRunStore) RecentRuns(ctx context.Context, repoName string, limit int) ([]*RunRecord, error) {
	var runs []*RunRecord
	query := `SELECT * FROM runs WHERE repo_name = $1 ORDER BY started_at DESC LIMIT $2`

	if err := s.db.SelectContext(ctx, &runs, query, repoName, limit); err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *PostgresRunStore) Close() error {
	return s.db.Close()
}
