package cmd

import (
	"context"

	"github.com/relloyd/openetl/actions"
	"github.com/relloyd/openetl/connection"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Queue pipeline runs for workers and check their status",
	Long: `Queue pipeline runs in Redis for execution by "openetl worker" processes and check
their status. Redis is configured by the runtime settings OETL_REDIS_ADDR, OETL_REDIS_PASSWORD,
OETL_REDIS_DB and OETL_QUEUE_NAME, read from the environment or a .env file in --env-path.`,
}

var taskSubmitCfg = actions.TaskSubmitConfig{}
var taskTargetString connection.ConnectionObject
var taskLogLevel string

var taskSubmitCmd = &cobra.Command{
	Use:   "submit " + sourceTargetArgsTxt,
	Short: "Queue a pipeline run",
	Long: `Queue a pipeline run and print the task ID. The run is validated before it is queued
but connections are loaded by the worker that executes it.`,
	Args: getSourceTargetArgsFunc(&taskSubmitCfg.Run.SourceString, &taskTargetString, ""),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		taskSubmitCfg.Out = cmd.OutOrStdout()
		return runTaskSubmit(cmd.Context())
	},
}

func runTaskSubmit(ctx context.Context) error {
	log := newCliLogger(taskLogLevel)
	svc, err := newServices(log)
	if err != nil {
		return err
	}
	defer svc.Close()
	applyTarget(&taskSubmitCfg.Run.Run.Target, taskTargetString)
	taskSubmitCfg.Run.Log = log
	if taskSubmitCfg.Queue, err = svc.queue(ctx); err != nil {
		return err
	}
	_, err = actions.RunTaskSubmit(ctx, &taskSubmitCfg)
	return err
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Print the status of a task",
	Long:  `Print the status, attempts and result or error of a queued task as JSON.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		svc, err := newServices(newCliLogger("warn"))
		if err != nil {
			return err
		}
		defer svc.Close()
		q, err := svc.queue(cmd.Context())
		if err != nil {
			return err
		}
		_, err = actions.RunTaskStatus(cmd.Context(), q, args[0], cmd.OutOrStdout())
		return err
	},
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskSubmitCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskSubmitCmd.Flags().SortFlags = false
	addRunFlags(taskSubmitCmd, &taskSubmitCfg.Run)
	switches.addFlag(taskSubmitCmd, &taskLogLevel, "log-level", "warn", false, "")
}
