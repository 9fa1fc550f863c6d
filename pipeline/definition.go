// Package pipeline defines integrations and runs them as chains of streaming components.
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/helper"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Frequencies supported by the external scheduler.
const (
	FrequencyWeekly   = "Weekly"
	FrequencyMonthly  = "Monthly"
	FrequencyDaily    = "Daily"
	FrequencyWeekends = "Weekends"
	FrequencyWeekday  = "Weekday"
)

var Frequencies = []string{FrequencyWeekly, FrequencyMonthly, FrequencyDaily, FrequencyWeekends, FrequencyWeekday}

const runStatusNotStarted = "Not Started"

// RunDetail records the outcome of a scheduled run on one day.
type RunDetail struct {
	RowsRead  int64  `json:"rows_read"`
	RowsWrite int64  `json:"rows_write"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

// Definition is an integration handed to the orchestrator.
// IsFrequency selects the Frequency schedule; otherwise SelectedDates are used.
type Definition struct {
	SparkConfig          map[string]string    `json:"spark_config" errorTxt:"spark config" mandatory:"yes"`
	HadoopConfig         map[string]string    `json:"hadoop_config" errorTxt:"hadoop config" mandatory:"yes"`
	IntegrationName      string               `json:"integration_name" errorTxt:"integration name" mandatory:"yes"`
	IsFrequency          bool                 `json:"is_frequency"`
	SelectedDates        []string             `json:"selected_dates" errorTxt:"selected dates" validate:"dive,datetime=2006-01-02"`
	ScheduleTime         string               `json:"schedule_time" errorTxt:"schedule time" mandatory:"yes" validate:"datetime=15:04:05"`
	Frequency            string               `json:"frequency" errorTxt:"frequency" validate:"omitempty,oneof=Weekly Monthly Daily Weekends Weekday"`
	ScheduleDates        string               `json:"schedule_dates" errorTxt:"schedule date" validate:"omitempty,datetime=2006-01-02"`
	RunDetails           map[string]RunDetail `json:"run_details"`
	SourceConnectionName string               `json:"source_connection_name" errorTxt:"source connection name" mandatory:"yes"`
	TargetConnectionName string               `json:"target_connection_name" errorTxt:"target connection name" mandatory:"yes"`
	SourceType           string               `json:"source_type" errorTxt:"source type" mandatory:"yes"`
	TargetType           string               `json:"target_type" errorTxt:"target type" mandatory:"yes"`
	SourceSchema         string               `json:"source_schema"`
	TargetSchema         string               `json:"target_schema"`
	SourceTable          string               `json:"source_table" errorTxt:"source table" mandatory:"yes"`
	TargetTable          string               `json:"target_table" errorTxt:"target table" mandatory:"yes"`
}

// DefaultSparkConfig returns the average Spark settings for a run from source to target.
func DefaultSparkConfig(source, target string) map[string]string {
	return map[string]string{
		"spark.driver.memory":      "1g",
		"spark.executor.memory":    "1g",
		"spark.executor.cores":     "1",
		"spark.executor.instances": "1",
		"spark.master":             "local[*]",
		"spark.app.name":           fmt.Sprintf("%v_to_%v", source, target),
	}
}

// DefaultHadoopConfig returns the S3A keys the user is expected to fill in.
func DefaultHadoopConfig() map[string]string {
	return map[string]string{
		"spark.hadoop.fs.s3a.access.key": "",
		"spark.hadoop.fs.s3a.secret.key": "",
		"spark.hadoop.fs.s3a.endpoint":   "",
		"spark.hadoop.fs.s3a.impl":       "org.apache.hadoop.fs.s3a.S3AFileSystem",
	}
}

// NewDefinition returns a definition with default Spark and Hadoop settings and
// a run details entry for today.
func NewDefinition(name, source, target string) *Definition {
	return &Definition{
		IntegrationName:      name,
		SourceConnectionName: source,
		TargetConnectionName: target,
		SparkConfig:          DefaultSparkConfig(source, target),
		HadoopConfig:         DefaultHadoopConfig(),
		SelectedDates:        []string{},
		RunDetails: map[string]RunDetail{
			time.Now().Format(constants.DateFormat): {StartTime: "00:00:00", EndTime: "00:00:00", Status: runStatusNotStarted},
		},
	}
}

// Validate checks mandatory fields and the schedule.
func (d *Definition) Validate() error {
	if err := helper.ValidateStruct(d); err != nil {
		return err
	}
	if d.IsFrequency {
		if d.Frequency == "" {
			return fmt.Errorf("please supply a frequency, one of %v", strings.Join(Frequencies, ", "))
		}
	} else if len(d.SelectedDates) == 0 {
		return errors.New("please supply selected dates or a frequency")
	}
	return nil
}

// Marshal renders d as JSON or YAML.
func (d *Definition) Marshal(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		return json.MarshalIndent(d, "", "  ")
	case FormatYAML:
		return yaml.Marshal(d)
	}
	return nil, fmt.Errorf("unsupported output format %q", format)
}

// Unmarshal reads a definition from JSON or YAML.
func Unmarshal(b []byte) (*Definition, error) {
	d := &Definition{}
	if err := yaml.Unmarshal(b, d); err != nil {
		return nil, errors.Wrap(err, "unable to parse integration definition")
	}
	return d, nil
}

// Load reads a JSON or YAML definition from path.
func Load(path string) (*Definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read integration definition %q", path)
	}
	return Unmarshal(b)
}

// FileName returns the name the definition is stored under by orchestrators.
func (d *Definition) FileName() string {
	return helper.SanitizeName(d.IntegrationName) + ".json"
}
