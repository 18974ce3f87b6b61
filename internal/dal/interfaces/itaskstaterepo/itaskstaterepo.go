package itaskstaterepo

import (
	"context"

	"github.com/corray333/backend-labs/saga/internal/service/models/taskstate"
)

// ITaskStateRepository is an interface for the task result backend.
type ITaskStateRepository interface {
	Set(ctx context.Context, state taskstate.TaskState) error
	// Get returns taskstate.ErrNotFound for unknown or expired tasks.
	Get(ctx context.Context, taskID string) (*taskstate.TaskState, error)
}
