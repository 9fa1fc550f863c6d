package cmd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/relloyd/openetl/auth"
	"github.com/relloyd/openetl/aws/s3"
	"github.com/relloyd/openetl/config"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/pipeline"
	"github.com/relloyd/openetl/rdbms"
	"github.com/relloyd/openetl/retry"
	"github.com/relloyd/openetl/tasks"
)

// services holds the long-lived clients that commands share.
// Close releases whatever was opened.
type services struct {
	log      logger.Logger
	settings *config.Settings
	redis    *redis.Client
	db       *rdbms.Connection
}

func newCliLogger(level string) logger.Logger {
	return logger.NewLogger(constants.ServiceName, level, stackDumpOnPanic)
}

func newServices(log logger.Logger) (*services, error) {
	s, err := config.LoadSettings(envPath)
	if err != nil {
		return nil, err
	}
	return &services{log: log, settings: s}, nil
}

func (svc *services) Close() {
	if svc.redis != nil {
		_ = svc.redis.Close()
	}
	if svc.db != nil {
		svc.db.Close()
	}
}

func (svc *services) redisClient(ctx context.Context) (*redis.Client, error) {
	if svc.redis != nil {
		return svc.redis, nil
	}
	c, err := tasks.NewRedisClient(ctx, svc.settings.RedisAddr, svc.settings.RedisPassword, svc.settings.RedisDB)
	if err != nil {
		return nil, err
	}
	svc.redis = c
	return c, nil
}

func (svc *services) queue(ctx context.Context) (tasks.Queue, error) {
	c, err := svc.redisClient(ctx)
	if err != nil {
		return nil, err
	}
	return tasks.NewRedisQueue(c, svc.settings.QueueName, svc.settings.ResultTTL()), nil
}

// tokenStore returns the file store normally; in twelveFactorMode there is no config directory
// so tokens are shared through redis.
func (svc *services) tokenStore(ctx context.Context) (auth.TokenStore, error) {
	if !twelveFactorMode {
		return auth.NewFileTokenStore(config.Tokens), nil
	}
	c, err := svc.redisClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "oauth2 tokens are read from redis in twelve-factor mode")
	}
	return auth.NewRedisTokenStore(c), nil
}

// batchStore is nil unless a batch store DSN is configured.
func (svc *services) batchStore(ctx context.Context) (*rdbms.BatchStore, error) {
	dsn := svc.settings.BatchStoreDSN
	if dsn == "" {
		return nil, nil
	}
	dbType, err := rdbms.DSNType(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "invalid batch store DSN")
	}
	conn, err := rdbms.OpenDSN(ctx, svc.log, dbType, dsn)
	if err != nil {
		return nil, err
	}
	svc.db = conn
	return rdbms.NewBatchStore(ctx, svc.log, conn)
}

// orchestrator prefers s3 over a directory; nil when neither is configured.
func (svc *services) orchestrator() (pipeline.Orchestrator, error) {
	switch {
	case svc.settings.OrchestratorS3 != "":
		bucket, err := s3.ParseDSN(svc.settings.OrchestratorS3, svc.settings.OrchestratorS3Region)
		if err != nil {
			return nil, err
		}
		client, err := s3.NewClient(bucket)
		if err != nil {
			return nil, err
		}
		return &pipeline.S3Orchestrator{Log: svc.log, Bucket: bucket, Client: client}, nil
	case svc.settings.OrchestratorDir != "":
		return &pipeline.DirectoryOrchestrator{Log: svc.log, Dir: svc.settings.OrchestratorDir}, nil
	}
	return nil, nil
}

func (svc *services) retryPolicy() retry.Policy {
	return retry.Policy{Tries: svc.settings.RetryTries, Delay: svc.settings.RetryDelay()}
}

func (svc *services) httpClient() *http.Client {
	return &http.Client{Timeout: svc.settings.FetchTimeout()}
}

// seconds converts a flag value to a duration.
func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func writeIndentedJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
