// Package tasks queues units of work and executes them with a pool of workers.
package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

//go:generate mockgen -source=task.go -destination=mocks/queue.go -package=mocks

type Status string

const (
	StatusPending Status = "PENDING"
	StatusStarted Status = "STARTED"
	StatusRetry   Status = "RETRY"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// IsFinished returns true once the task has succeeded or failed.
func (s Status) IsFinished() bool {
	return s == StatusSuccess || s == StatusFailure
}

var ErrTaskNotFound = errors.New("task not found")

// Task is a unit of work delivered to a worker.
type Task struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	SubmittedAt time.Time       `json:"submittedAt"`
}

// Result is the recorded state of a task.
type Result struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Status      Status          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
	SubmittedAt time.Time       `json:"submittedAt"`
	StartedAt   time.Time       `json:"startedAt"`
	FinishedAt  time.Time       `json:"finishedAt"`
}

// Queue delivers tasks at least once and records their results.
// Next returns a nil task when no task arrives before timeout.
// Start is called before each attempt and counts attempts.
// A delivered task that is not completed within staleAfter of its last delivery or start is
// delivered again after Requeue.
type Queue interface {
	Submit(ctx context.Context, name string, payload interface{}) (string, error)
	Status(ctx context.Context, id string) (Result, error)
	Next(ctx context.Context, timeout time.Duration) (*Task, error)
	Start(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, result interface{}, taskErr error) error
	Requeue(ctx context.Context, staleAfter time.Duration) (int, error)
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, errors.New("task payload is not valid JSON")
		}
		return p, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "unable to marshal task payload")
	}
	return b, nil
}

// startedStatus is the status recorded for the given attempt number.
func startedStatus(attempt int) Status {
	if attempt > 1 {
		return StatusRetry
	}
	return StatusStarted
}

func completedStatus(taskErr error) (Status, string) {
	if taskErr != nil {
		return StatusFailure, taskErr.Error()
	}
	return StatusSuccess, ""
}
