// Package sqlite provides a CheckpointStore backed by a local SQLite
// database, suitable for single-host deployments that need runs to
// survive process restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/draftforge/taskgraph/store"
)

// SqliteCheckpointStore implements store.CheckpointStore on SQLite. The
// full checkpoint is stored as a JSON document; run id and version are
// lifted into indexed columns for the Latest and List queries.
type SqliteCheckpointStore struct {
	db        *sql.DB
	tableName string
}

// SqliteOptions configures the SQLite connection.
type SqliteOptions struct {
	// Path is the database file path, or ":memory:" for tests.
	Path string
	// TableName defaults to "checkpoints".
	TableName string
}

// NewSqliteCheckpointStore opens the database and creates the checkpoint
// table if needed.
func NewSqliteCheckpointStore(opts SqliteOptions) (*SqliteCheckpointStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}

	s := &SqliteCheckpointStore{db: db, tableName: tableName}
	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the necessary table if it doesn't exist.
func (s *SqliteCheckpointStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			document TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_run_id ON %s (run_id, version);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SqliteCheckpointStore) Close() error {
	return s.db.Close()
}

// Save stores a checkpoint.
func (s *SqliteCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint == nil || checkpoint.ID == "" {
		return fmt.Errorf("checkpoint must have an ID")
	}

	doc, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, run_id, version, document)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id = excluded.run_id,
			version = excluded.version,
			document = excluded.document
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query, checkpoint.ID, checkpoint.RunID, checkpoint.Version, string(doc)); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint by ID.
func (s *SqliteCheckpointStore) Load(ctx context.Context, checkpointID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf("SELECT document FROM %s WHERE id = ?", s.tableName)

	var doc string
	err := s.db.QueryRowContext(ctx, query, checkpointID).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, checkpointID)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return unmarshalCheckpoint(doc)
}

// Latest returns the highest-version checkpoint for a run.
func (s *SqliteCheckpointStore) Latest(ctx context.Context, runID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT document FROM %s
		WHERE run_id = ?
		ORDER BY version DESC
		LIMIT 1
	`, s.tableName)

	var doc string
	err := s.db.QueryRowContext(ctx, query, runID).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: run %s", store.ErrNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}
	return unmarshalCheckpoint(doc)
}

// List returns all checkpoints for a run, oldest first.
func (s *SqliteCheckpointStore) List(ctx context.Context, runID string) ([]*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT document FROM %s
		WHERE run_id = ?
		ORDER BY version ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*store.Checkpoint
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		cp, err := unmarshalCheckpoint(doc)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint rows: %w", err)
	}
	return checkpoints, nil
}

// Delete removes a checkpoint.
func (s *SqliteCheckpointStore) Delete(ctx context.Context, checkpointID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, checkpointID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Clear removes all checkpoints for a run.
func (s *SqliteCheckpointStore) Clear(ctx context.Context, runID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE run_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, runID); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}

func unmarshalCheckpoint(doc string) (*store.Checkpoint, error) {
	var cp store.Checkpoint
	if err := json.Unmarshal([]byte(doc), &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

var _ store.CheckpointStore = (*SqliteCheckpointStore)(nil)
