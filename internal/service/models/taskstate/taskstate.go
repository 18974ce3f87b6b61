package taskstate

import (
	"errors"
	"time"
)

// State is the lifecycle state of one consumed task.
type State string

const (
	StatePending State = "PENDING"
	StateStarted State = "STARTED"
	StateRetry   State = "RETRY"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

var ErrNotFound = errors.New("task state not found")

// TaskState is the record kept in the result backend.
type TaskState struct {
	TaskID    string    `json:"task_id"`
	Event     string    `json:"event"`
	State     State     `json:"status"`
	Retries   int       `json:"retries"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"date_done"`
}
