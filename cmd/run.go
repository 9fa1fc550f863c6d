package cmd

import (
	"context"
	"strconv"

	"github.com/relloyd/openetl/actions"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"github.com/spf13/cobra"
)

var runCfg = actions.RunConfig{}
var runTargetString connection.ConnectionObject
var runLogLevel string

var runCmd = &cobra.Command{
	Use:   "run " + sourceTargetArgsTxt,
	Short: "Fetch an API table and write it to a target",
	Long: `Run a pipeline in this process: fetch every page of an API table, flatten the records
and stream the rows to the target, which is one of:

  stdout                              print rows as CSV or JSON
  csv                                 write CSV files to a directory
  <s3-connection>.<object>            write CSV files to a bucket under the object prefix
  <db-connection>.[<schema>.]<table>  insert rows into a database table

Rows may be filtered first. A getmax filter keeps rows whose field is greater than the
maximum seen by earlier runs of the same integration (requires a batch store). A jsonlogic
filter keeps rows matching the rule supplied as metadata.`,
	Args: getSourceTargetArgsFunc(&runCfg.SourceString, &runTargetString, ""),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		runCfg.Out = cmd.OutOrStdout()
		return runRun(cmd.Context())
	},
}

func runRun(ctx context.Context) error {
	log := newCliLogger(runLogLevel)
	svc, err := newServices(log)
	if err != nil {
		return err
	}
	defer svc.Close()
	applyTarget(&runCfg.Run.Target, runTargetString)
	runCfg.Log = log
	runCfg.Connections = getConnectionLoader()
	runCfg.Client = svc.httpClient()
	if runCfg.Tokens, err = svc.tokenStore(ctx); err != nil {
		return err
	}
	if runCfg.Batches, err = svc.batchStore(ctx); err != nil {
		return err
	}
	_, err = actions.RunPipeline(ctx, &runCfg)
	return err
}

// addRunFlags registers the flags that describe a run on c.
func addRunFlags(c *cobra.Command, cfg *actions.RunConfig) {
	switches.addFlag(c, &cfg.Run.IntegrationName, "integration-name", "", false, "")
	switches.addFlag(c, &cfg.Run.RecordsKey, "records-key", "", false, "")
	switches.addFlag(c, &cfg.Run.Target.Format, "format", actions.OutputFormatCSV, false, " for stdout targets")
	switches.addFlag(c, &cfg.Run.Target.Directory, "target-directory", "", false, "")
	switches.addFlag(c, &cfg.Run.Target.MaxFileRows, "csv-rows", "0", false, "")
	switches.addFlag(c, &cfg.Run.Target.UseGzip, "gzip", "false", false, "")
	switches.addFlag(c, &cfg.Run.Target.CreateTable, "create-table", "false", false, "")
	switches.addFlag(c, &cfg.Run.FilterType, "filter-type", "", false, "")
	switches.addFlag(c, &cfg.Run.FilterMetadata, "filter-metadata", "", false, "")
	switches.addFlag(c, &cfg.Run.MaxPages, "max-pages", strconv.Itoa(constants.MaxPagesDefault), false, "")
	switches.addFlag(c, &cfg.Run.RetryTries, "retry-tries", strconv.Itoa(constants.TaskRetryTriesDefault), false, "")
	switches.addFlag(c, &cfg.Run.RetryDelaySeconds, "retry-delay", strconv.Itoa(constants.TaskRetryDelayDefault), false, "")
	switches.addFlag(c, &cfg.Run.TimeoutSeconds, "timeout", "300", false, "")
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().SortFlags = false
	addRunFlags(runCmd, &runCfg)
	switches.addFlag(runCmd, &runLogLevel, "log-level", "warn", false, "")
}
