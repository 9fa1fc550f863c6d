package actions

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/pipeline"
)

type CreateIntegrationConfig struct {
	Log           logger.Logger
	Connections   ConnectionLoader
	Name          string
	SourceString  connection.ConnectionObject
	TargetString  connection.ConnectionObject
	Frequency     string
	ScheduleTime  string
	ScheduleDate  string
	SelectedDates []string
	SparkConfig   map[string]string // merged over the defaults.
	HadoopConfig  map[string]string // merged over the defaults.
	Output        string            // yaml|json to print the definition instead of submitting it.
	Orchestrator  pipeline.Orchestrator
	Out           io.Writer
}

// BuildDefinition creates an integration definition from cfg.
// Source and target types are read from the stored connections.
func BuildDefinition(cfg *CreateIntegrationConfig) (*pipeline.Definition, error) {
	srcConn, srcSchema, srcTable := cfg.SourceString.Split()
	tgtConn, tgtSchema, tgtTable := cfg.TargetString.Split()
	srcType, err := connectionTypeOf(cfg.Connections, srcConn)
	if err != nil {
		return nil, err
	}
	tgtType, err := connectionTypeOf(cfg.Connections, tgtConn)
	if err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("%v_%v_to_%v_%v", srcConn, srcTable, tgtConn, tgtTable)
	}
	d := pipeline.NewDefinition(name, srcConn, tgtConn)
	d.SourceType = srcType
	d.TargetType = tgtType
	d.SourceSchema = srcSchema
	d.SourceTable = srcTable
	d.TargetSchema = tgtSchema
	d.TargetTable = tgtTable
	d.Frequency = cfg.Frequency
	d.IsFrequency = cfg.Frequency != ""
	d.ScheduleTime = cfg.ScheduleTime
	d.ScheduleDates = cfg.ScheduleDate
	if len(cfg.SelectedDates) > 0 {
		d.SelectedDates = cfg.SelectedDates
	}
	for k, v := range cfg.SparkConfig {
		d.SparkConfig[k] = v
	}
	for k, v := range cfg.HadoopConfig {
		d.HadoopConfig[k] = v
	}
	if err = d.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid integration")
	}
	return d, nil
}

// RunCreateIntegration prints the definition when cfg.Output is set, otherwise it submits it to
// cfg.Orchestrator and returns the location it was written to.
func RunCreateIntegration(ctx context.Context, cfg *CreateIntegrationConfig) (string, error) {
	d, err := BuildDefinition(cfg)
	if err != nil {
		return "", err
	}
	if cfg.Output != "" {
		b, err := d.Marshal(cfg.Output)
		if err != nil {
			return "", err
		}
		_, err = stdout(cfg.Out).Write(b)
		return "", err
	}
	if cfg.Orchestrator == nil {
		return "", errors.New("no orchestrator configured: set an output format or an orchestrator directory or bucket")
	}
	loc, err := cfg.Orchestrator.Submit(ctx, d)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(stdout(cfg.Out), "Integration %q submitted to %v\n", d.IntegrationName, loc)
	return loc, nil
}

func connectionTypeOf(c ConnectionLoader, name string) (string, error) {
	switch name {
	case constants.ConnectionTypeStdout, constants.ConnectionTypeCSV:
		return name, nil
	case "":
		return "", errors.New("please supply a connection name")
	}
	d, err := c.LoadConnection(name)
	if err != nil {
		return "", err
	}
	return d.Type, nil
}
