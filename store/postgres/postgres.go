package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/draftforge/taskgraph/store"
)

// DBPool defines the interface for the database connection pool.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresCheckpointStore implements store.CheckpointStore using
// PostgreSQL. The checkpoint document is stored as JSONB with run id and
// version lifted into indexed columns.
type PostgresCheckpointStore struct {
	pool      DBPool
	tableName string
}

// PostgresOptions configures the Postgres connection.
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "checkpoints"
}

// NewPostgresCheckpointStore creates a new Postgres checkpoint store.
func NewPostgresCheckpointStore(ctx context.Context, opts PostgresOptions) (*PostgresCheckpointStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}

	return &PostgresCheckpointStore{pool: pool, tableName: tableName}, nil
}

// NewPostgresCheckpointStoreWithPool creates a store with an existing
// pool. Useful for testing with mocks.
func NewPostgresCheckpointStoreWithPool(pool DBPool, tableName string) *PostgresCheckpointStore {
	if tableName == "" {
		tableName = "checkpoints"
	}
	return &PostgresCheckpointStore{pool: pool, tableName: tableName}
}

// InitSchema creates the necessary table if it doesn't exist.
func (s *PostgresCheckpointStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			document JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_run_id ON %s (run_id, version);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresCheckpointStore) Close() {
	s.pool.Close()
}

// Save stores a checkpoint.
func (s *PostgresCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint == nil || checkpoint.ID == "" {
		return fmt.Errorf("checkpoint must have an ID")
	}

	doc, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, run_id, version, document)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			version = EXCLUDED.version,
			document = EXCLUDED.document
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query, checkpoint.ID, checkpoint.RunID, checkpoint.Version, doc); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint by ID.
func (s *PostgresCheckpointStore) Load(ctx context.Context, checkpointID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf("SELECT document FROM %s WHERE id = $1", s.tableName)

	var doc []byte
	err := s.pool.QueryRow(ctx, query, checkpointID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, checkpointID)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return unmarshalCheckpoint(doc)
}

// Latest returns the highest-version checkpoint for a run.
func (s *PostgresCheckpointStore) Latest(ctx context.Context, runID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT document FROM %s
		WHERE run_id = $1
		ORDER BY version DESC
		LIMIT 1
	`, s.tableName)

	var doc []byte
	err := s.pool.QueryRow(ctx, query, runID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: run %s", store.ErrNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}
	return unmarshalCheckpoint(doc)
}

// List returns all checkpoints for a run, oldest first.
func (s *PostgresCheckpointStore) List(ctx context.Context, runID string) ([]*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT document FROM %s
		WHERE run_id = $1
		ORDER BY version ASC
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*store.Checkpoint
	for rows.Next() {
		var doc []byte
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
func (s *PostgresCheckpointStore) Delete(ctx context.Context, checkpointID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, checkpointID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Clear removes all checkpoints for a run.
func (s *PostgresCheckpointStore) Clear(ctx context.Context, runID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE run_id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, runID); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}

func unmarshalCheckpoint(doc []byte) (*store.Checkpoint, error) {
	var cp store.Checkpoint
	if err := json.Unmarshal(doc, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

var _ store.CheckpointStore = (*PostgresCheckpointStore)(nil)
