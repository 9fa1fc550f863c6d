package actions

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/relloyd/openetl/auth"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/pipeline"
	"github.com/relloyd/openetl/rdbms"
)

type RunConfig struct {
	Log          logger.Logger
	Connections  ConnectionLoader
	Tokens       auth.TokenStore
	Client       *http.Client
	Batches      *rdbms.BatchStore
	SourceString connection.ConnectionObject
	Run          pipeline.RunConfig // source connection, source table and Env are set from the fields above.
	Out          io.Writer          // receives stdout targets and the run summary.
}

// BuildRunConfig completes cfg.Run from the source string and environment in cfg.
// The environment is checked when the run starts.
func BuildRunConfig(cfg *RunConfig) (pipeline.RunConfig, error) {
	rc := cfg.Run
	connectionName, _, tableName := cfg.SourceString.Split()
	if tableName == "" {
		return rc, fmt.Errorf("please supply a source of the form <connection>.<table>, got %q", cfg.SourceString.ConnectionObject)
	}
	rc.SourceConnection = connectionName
	rc.SourceTable = tableName
	rc.Env = pipeline.Env{
		Connections: cfg.Connections,
		Tokens:      cfg.Tokens,
		Client:      cfg.Client,
		Stdout:      cfg.Out,
		Batches:     cfg.Batches,
	}
	return rc, rc.ValidatePayload()
}

// RunPipeline runs the pipeline in this process and logs a summary.
func RunPipeline(ctx context.Context, cfg *RunConfig) (pipeline.RunResult, error) {
	rc, err := BuildRunConfig(cfg)
	if err != nil {
		return pipeline.RunResult{}, err
	}
	res, err := pipeline.Run(ctx, cfg.Log, rc)
	if err != nil {
		return res, err
	}
	cfg.Log.Info(fmt.Sprintf("run %v complete: %v rows read, %v rows written", rc.Name(), res.RowsRead, res.RowsWritten))
	for _, f := range res.Files {
		cfg.Log.Info("file written: ", f)
	}
	for _, k := range res.Keys {
		cfg.Log.Info("object written: ", k)
	}
	return res, nil
}
