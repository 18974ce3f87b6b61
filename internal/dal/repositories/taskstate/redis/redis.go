package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/corray333/backend-labs/saga/internal/service/models/taskstate"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "saga-task-meta-"
	DefaultTTL       = 24 * time.Hour
)

// RedisTaskStateRepository keeps one JSON document per task id.
type RedisTaskStateRepository struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// option is a function that configures the RedisTaskStateRepository.
type option func(*RedisTaskStateRepository)

// WithTTL sets how long finished and pending states are retained.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithTTL(ttl time.Duration) option {
	return func(r *RedisTaskStateRepository) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithKeyPrefix sets the key prefix.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithKeyPrefix(prefix string) option {
	return func(r *RedisTaskStateRepository) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

func NewRedisTaskStateRepository(client redis.Cmdable, opts ...option) *RedisTaskStateRepository {
	r := &RedisTaskStateRepository{
		client: client,
		prefix: DefaultKeyPrefix,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *RedisTaskStateRepository) key(taskID string) string {
	return r.prefix + taskID
}

// Set overwrites the state of a task and refreshes its TTL.
func (r *RedisTaskStateRepository) Set(ctx context.Context, state taskstate.TaskState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = r.now().UTC()
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal task state: %w", err)
	}

	if err := r.client.Set(ctx, r.key(state.TaskID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store task state: %w", err)
	}

	return nil
}

// Get returns the last stored state of a task.
func (r *RedisTaskStateRepository) Get(ctx context.Context, taskID string) (*taskstate.TaskState, error) {
	data, err := r.client.Get(ctx, r.key(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", taskstate.ErrNotFound, taskID)
		}

		return nil, fmt.Errorf("failed to load task state: %w", err)
	}

	var state taskstate.TaskState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task state: %w", err)
	}

	return &state, nil
}
