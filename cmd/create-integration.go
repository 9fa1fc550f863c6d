package cmd

import (
	"github.com/relloyd/openetl/actions"
	"github.com/spf13/cobra"
)

var createIntegrationCfg = actions.CreateIntegrationConfig{}
var createIntegrationLogLevel string

var createIntegrationCmd = &cobra.Command{
	Use:   "integration " + sourceTargetArgsTxt,
	Short: "Create an integration definition and submit it to the scheduler",
	Long: `Create an integration definition from the source and target connections plus a schedule.
Supply a frequency, or selected dates when no frequency is given. The definition is
validated and then printed (see --output) or submitted to the orchestrator configured by
the runtime settings OETL_ORCHESTRATOR_DIR or OETL_ORCHESTRATOR_S3.`,
	Args: getSourceTargetArgsFunc(&createIntegrationCfg.SourceString, &createIntegrationCfg.TargetString, ""),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		log := newCliLogger(createIntegrationLogLevel)
		createIntegrationCfg.Log = log
		createIntegrationCfg.Connections = getConnectionLoader()
		createIntegrationCfg.Out = cmd.OutOrStdout()
		if createIntegrationCfg.Output == "" {
			svc, err := newServices(log)
			if err != nil {
				return err
			}
			defer svc.Close()
			if createIntegrationCfg.Orchestrator, err = svc.orchestrator(); err != nil {
				return err
			}
		}
		_, err := actions.RunCreateIntegration(cmd.Context(), &createIntegrationCfg)
		return err
	},
}

func init() {
	createCmd.AddCommand(createIntegrationCmd)
	createIntegrationCmd.Flags().SortFlags = false
	switches.addFlag(createIntegrationCmd, &createIntegrationCfg.Name, "integration-name", "", false, "")
	switches.addFlag(createIntegrationCmd, &createIntegrationCfg.Frequency, "frequency", "", false, "")
	switches.addFlag(createIntegrationCmd, &createIntegrationCfg.ScheduleTime, "schedule-time", "00:00:00", false, "")
	switches.addFlag(createIntegrationCmd, &createIntegrationCfg.ScheduleDate, "schedule-date", "", false, "")
	switches.addFlag(createIntegrationCmd, &createIntegrationCfg.SelectedDates, "selected-dates", "", false, "")
	switches.addFlag(createIntegrationCmd, &createIntegrationCfg.SparkConfig, "spark-config", "", false, "")
	switches.addFlag(createIntegrationCmd, &createIntegrationCfg.HadoopConfig, "hadoop-config", "", false, "")
	switches.addFlag(createIntegrationCmd, &createIntegrationCfg.Output, "output", "", false, "")
	switches.addFlag(createIntegrationCmd, &createIntegrationLogLevel, "log-level", "warn", false, "")
}
