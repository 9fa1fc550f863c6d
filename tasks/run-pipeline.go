package tasks

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/pipeline"
)

// SubmitRun queues cfg as a run_pipeline task.
func SubmitRun(ctx context.Context, q Queue, cfg pipeline.RunConfig) (string, error) {
	if err := cfg.ValidatePayload(); err != nil {
		return "", err
	}
	return q.Submit(ctx, constants.TaskNameRunPipeline, cfg)
}

// RunPipelineHandler executes run_pipeline payloads using env.
// Connection names in the payload are resolved by env.Connections.
func RunPipelineHandler(log logger.Logger, env pipeline.Env) Handler {
	return func(ctx context.Context, payload []byte) (interface{}, error) {
		cfg := pipeline.RunConfig{}
		if err := json.Unmarshal(payload, &cfg); err != nil {
			return nil, errors.Wrap(err, "unable to parse run_pipeline payload")
		}
		cfg.Env = env
		cfg.Env.Stats = nil // each run collects its own stats.
		res, err := pipeline.Run(ctx, log, cfg)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}
