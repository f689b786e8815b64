package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRunStore keeps the run ledger in a local SQLite file. This is
// the default backend when no database URL is configured.
type SQLiteRunStore struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewSQLiteRunStore opens (creating if needed) the ledger at path.
func NewSQLiteRunStore(path string, log *slog.Logger) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	store := &SQLiteRunStore{db: db, log: log}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteRunStore) initSchema() error {
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
		started_at DATETIME,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_runs_repo ON runs(repo_name, started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteRunStore) SaveRun(ctx context.Context, run *RunRecord) error {
	query := `
		INSERT OR REPLACE INTO runs
		(id, repo_name, repo_path, kind, status, files, skipped_files,
		 nodes, edges, verified_edges, error, started_at, finished_at)
		VALUES (:id, :repo_name, :repo_path, :kind, :status, :files, :skipped_files,
		 :nodes, :edges, :verified_edges, :error, :started_at, :finished_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var run RunRecord
	err := s.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE id = ?`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteRunStore) RecentRuns(ctx context.Context, repoName string, limit int) ([]*RunRecord, error) {
	var runs []*RunRecord
	query := `SELECT * FROM runs WHERE repo_name = ? ORDER BY started_at DESC LIMIT ?`

	if err := s.db.SelectContext(ctx, &runs, query, repoName, limit); err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}
