package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/constants"
	"github.com/spf13/viper"
)

// Settings holds runtime configuration for the worker and web server.
// Values come from an optional .env file in the supplied path, overridden by OETL_ environment variables.
type Settings struct {
	RedisAddr            string `mapstructure:"REDIS_ADDR"`
	RedisPassword        string `mapstructure:"REDIS_PASSWORD"`
	RedisDB              int    `mapstructure:"REDIS_DB"`
	QueueName            string `mapstructure:"QUEUE_NAME"`
	ResultTTLSeconds     int    `mapstructure:"RESULT_TTL_SECONDS"`
	BatchStoreDSN        string `mapstructure:"BATCH_STORE_DSN"`
	OrchestratorDir      string `mapstructure:"ORCHESTRATOR_DIR"`
	OrchestratorS3       string `mapstructure:"ORCHESTRATOR_S3"` // s3://<bucket>/<prefix>
	OrchestratorS3Region string `mapstructure:"ORCHESTRATOR_S3_REGION"`
	WorkerConcurrency    int    `mapstructure:"WORKER_CONCURRENCY"`
	RetryTries           int    `mapstructure:"RETRY_TRIES"`
	RetryDelaySeconds    int    `mapstructure:"RETRY_DELAY_SECONDS"`
	TaskStaleSeconds     int    `mapstructure:"TASK_STALE_SECONDS"` // 0 disables redelivery
	MaxPages             int    `mapstructure:"MAX_PAGES"`
	FetchTimeoutSeconds  int    `mapstructure:"FETCH_TIMEOUT_SECONDS"`
}

var settingsDefaults = map[string]interface{}{
	"REDIS_ADDR":             "localhost:6379",
	"REDIS_PASSWORD":         "",
	"REDIS_DB":               0,
	"QUEUE_NAME":             constants.TaskQueueDefault,
	"RESULT_TTL_SECONDS":     86400,
	"BATCH_STORE_DSN":        "",
	"ORCHESTRATOR_DIR":       "",
	"ORCHESTRATOR_S3":        "",
	"ORCHESTRATOR_S3_REGION": "",
	"WORKER_CONCURRENCY":     1,
	"RETRY_TRIES":            constants.TaskRetryTriesDefault,
	"RETRY_DELAY_SECONDS":    constants.TaskRetryDelayDefault,
	"TASK_STALE_SECONDS":     constants.TaskStaleAfterDefault,
	"MAX_PAGES":              constants.MaxPagesDefault,
	"FETCH_TIMEOUT_SECONDS":  300,
}

// LoadSettings reads settings using viper.
// A missing .env file is not an error.
func LoadSettings(envPath string) (*Settings, error) {
	if envPath == "" {
		envPath = "."
	}
	v := viper.New()
	v.SetEnvPrefix(constants.EnvVarPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.AddConfigPath(envPath)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	for k, d := range settingsDefaults {
		v.SetDefault(k, d)
	}
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, errors.Wrap(err, "unable to read settings file")
		}
	}
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "unable to decode settings")
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.WorkerConcurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1, got %v", s.WorkerConcurrency)
	}
	if s.RetryTries < 1 {
		return fmt.Errorf("retry tries must be at least 1, got %v", s.RetryTries)
	}
	if s.RetryDelaySeconds < 0 {
		return fmt.Errorf("retry delay must not be negative, got %v", s.RetryDelaySeconds)
	}
	if s.TaskStaleSeconds < 0 {
		return fmt.Errorf("task stale seconds must not be negative, got %v", s.TaskStaleSeconds)
	}
	return nil
}

func (s *Settings) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySeconds) * time.Second
}

// TaskStaleAfter is how long a delivered task may go without completing before it is
// delivered again.
func (s *Settings) TaskStaleAfter() time.Duration {
	return time.Duration(s.TaskStaleSeconds) * time.Second
}

func (s *Settings) ResultTTL() time.Duration {
	return time.Duration(s.ResultTTLSeconds) * time.Second
}

func (s *Settings) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutSeconds) * time.Second
}
