package cmd

import (
	"github.com/relloyd/openetl/actions"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	"github.com/spf13/cobra"
)

var workerCfg = actions.WorkerConfig{}
var workerLogLevel string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Execute queued pipeline runs",
	Long: `Execute pipeline runs queued by "openetl task submit" or POST /tasks until interrupted.
Failed runs are retried using OETL_RETRY_TRIES and OETL_RETRY_DELAY_SECONDS and the
outcome of each task is recorded for OETL_RESULT_TTL_SECONDS. A task that is not complete
OETL_TASK_STALE_SECONDS after delivery, because its worker died, is delivered again. Runs that use a getmax filter
record their batches in the database named by OETL_BATCH_STORE_DSN.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		log := logger.NewWebLogger(constants.ServiceName, workerLogLevel, stackDumpOnPanic, nil)
		svc, err := newServices(log)
		if err != nil {
			return err
		}
		defer svc.Close()
		workerCfg.Log = log
		workerCfg.Connections = getConnectionLoader()
		workerCfg.Client = svc.httpClient()
		workerCfg.Retry = svc.retryPolicy()
		if workerCfg.Concurrency == 0 {
			workerCfg.Concurrency = svc.settings.WorkerConcurrency
		}
		workerCfg.StaleAfter = svc.settings.TaskStaleAfter()
		if workerCfg.Queue, err = svc.queue(cmd.Context()); err != nil {
			return err
		}
		if workerCfg.Tokens, err = svc.tokenStore(cmd.Context()); err != nil {
			return err
		}
		if workerCfg.Batches, err = svc.batchStore(cmd.Context()); err != nil {
			return err
		}
		return actions.RunWorker(cmd.Context(), &workerCfg)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().SortFlags = false
	switches.addFlag(workerCmd, &workerCfg.Concurrency, "concurrency", "0", false, "")
	switches.addFlag(workerCmd, &workerLogLevel, "log-level", "info", false, "")
}
