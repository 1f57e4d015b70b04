package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/draftforge/taskgraph/store"
)

// RedisCheckpointStore implements store.CheckpointStore using Redis.
// Checkpoints are JSON values keyed by checkpoint ID; a per-run set
// indexes the run's checkpoint IDs.
type RedisCheckpointStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "taskgraph:"
	TTL      time.Duration // Expiration for checkpoints, default 0 (no expiration)
}

// NewRedisCheckpointStore creates a new Redis checkpoint store.
func NewRedisCheckpointStore(opts RedisOptions) *RedisCheckpointStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisCheckpointStoreWithClient(client, opts.Prefix, opts.TTL)
}

// NewRedisCheckpointStoreWithClient wraps an existing client. Useful for
// tests and for sharing a client across stores.
func NewRedisCheckpointStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisCheckpointStore {
	if prefix == "" {
		prefix = "taskgraph:"
	}
	return &RedisCheckpointStore{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the underlying client.
func (s *RedisCheckpointStore) Close() error {
	return s.client.Close()
}

func (s *RedisCheckpointStore) checkpointKey(id string) string {
	return fmt.Sprintf("%scheckpoint:%s", s.prefix, id)
}

func (s *RedisCheckpointStore) runKey(runID string) string {
	return fmt.Sprintf("%srun:%s:checkpoints", s.prefix, runID)
}

// Save stores a checkpoint and indexes it under its run.
func (s *RedisCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint == nil || checkpoint.ID == "" {
		return fmt.Errorf("checkpoint must have an ID")
	}

	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.checkpointKey(checkpoint.ID), data, s.ttl)
	runKey := s.runKey(checkpoint.RunID)
	pipe.SAdd(ctx, runKey, checkpoint.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, runKey, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint to redis: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint by ID.
func (s *RedisCheckpointStore) Load(ctx context.Context, checkpointID string) (*store.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.checkpointKey(checkpointID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, checkpointID)
		}
		return nil, fmt.Errorf("failed to load checkpoint from redis: %w", err)
	}

	var cp store.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Latest returns the highest-version checkpoint for a run.
func (s *RedisCheckpointStore) Latest(ctx context.Context, runID string) (*store.Checkpoint, error) {
	checkpoints, err := s.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(checkpoints) == 0 {
		return nil, fmt.Errorf("%w: run %s", store.ErrNotFound, runID)
	}
	return checkpoints[len(checkpoints)-1], nil
}

// List returns all checkpoints for a run, oldest version first. Expired
// checkpoint keys are skipped.
func (s *RedisCheckpointStore) List(ctx context.Context, runID string) ([]*store.Checkpoint, error) {
	ids, err := s.client.SMembers(ctx, s.runKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints for run %s: %w", runID, err)
	}
	if len(ids) == 0 {
		return []*store.Checkpoint{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.checkpointKey(id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkpoints from redis: %w", err)
	}

	checkpoints := make([]*store.Checkpoint, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var cp store.Checkpoint
		if err := json.Unmarshal([]byte(raw), &cp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, &cp)
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].Version < checkpoints[j].Version
	})
	return checkpoints, nil
}

// Delete removes a checkpoint and its run-index entry.
func (s *RedisCheckpointStore) Delete(ctx context.Context, checkpointID string) error {
	cp, err := s.Load(ctx, checkpointID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.checkpointKey(checkpointID))
	pipe.SRem(ctx, s.runKey(cp.RunID), checkpointID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete checkpoint from redis: %w", err)
	}
	return nil
}

// Clear removes all checkpoints for a run.
func (s *RedisCheckpointStore) Clear(ctx context.Context, runID string) error {
	ids, err := s.client.SMembers(ctx, s.runKey(runID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints for run %s: %w", runID, err)
	}

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.checkpointKey(id))
	}
	pipe.Del(ctx, s.runKey(runID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear checkpoints from redis: %w", err)
	}
	return nil
}

var _ store.CheckpointStore = (*RedisCheckpointStore)(nil)
