package actions

import (
	"context"
	"net/http"
	"time"

	"github.com/relloyd/openetl/auth"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/pipeline"
	"github.com/relloyd/openetl/rdbms"
	"github.com/relloyd/openetl/retry"
	"github.com/relloyd/openetl/tasks"
)

type WorkerConfig struct {
	Log         logger.Logger
	Queue       tasks.Queue
	Connections ConnectionLoader
	Tokens      auth.TokenStore
	Client      *http.Client
	Batches     *rdbms.BatchStore
	Concurrency int
	Retry       retry.Policy
	PollTimeout time.Duration
	StaleAfter  time.Duration
}

// NewWorker returns a worker that executes run_pipeline tasks.
func NewWorker(cfg *WorkerConfig) (*tasks.Worker, error) {
	reg := tasks.NewRegistry()
	env := pipeline.Env{
		Connections: cfg.Connections,
		Tokens:      cfg.Tokens,
		Client:      cfg.Client,
		Batches:     cfg.Batches,
	}
	if err := reg.Register(constants.TaskNameRunPipeline, tasks.RunPipelineHandler(cfg.Log, env), cfg.Retry); err != nil {
		return nil, err
	}
	return &tasks.Worker{
		Log:         cfg.Log,
		Queue:       cfg.Queue,
		Registry:    reg,
		Concurrency: cfg.Concurrency,
		PollTimeout: cfg.PollTimeout,
		StaleAfter:  cfg.StaleAfter,
	}, nil
}

// RunWorker executes tasks until ctx is cancelled.
func RunWorker(ctx context.Context, cfg *WorkerConfig) error {
	w, err := NewWorker(cfg)
	if err != nil {
		return err
	}
	w.Run(ctx)
	return nil
}
