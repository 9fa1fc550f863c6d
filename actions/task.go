package actions

import (
	"context"
	"fmt"
	"io"

	"github.com/relloyd/openetl/tasks"
)

type TaskSubmitConfig struct {
	Run   RunConfig
	Queue tasks.Queue
	Out   io.Writer
}

// RunTaskSubmit queues a run_pipeline task and returns its id.
// Connection names are sent as-is and resolved by the worker.
func RunTaskSubmit(ctx context.Context, cfg *TaskSubmitConfig) (string, error) {
	rc, err := BuildRunConfig(&cfg.Run)
	if err != nil {
		return "", err
	}
	id, err := tasks.SubmitRun(ctx, cfg.Queue, rc)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(stdout(cfg.Out), "Task %v submitted\n", id)
	return id, nil
}

// RunTaskStatus prints the recorded state of task id as JSON.
func RunTaskStatus(ctx context.Context, q tasks.Queue, id string, out io.Writer) (tasks.Result, error) {
	r, err := q.Status(ctx, id)
	if err != nil {
		return r, fmt.Errorf("unable to fetch status of task %v: %w", id, err)
	}
	return r, writeJSON(stdout(out), r)
}
