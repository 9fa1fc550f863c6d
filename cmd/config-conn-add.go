package cmd

import (
	"github.com/relloyd/openetl/actions"
	"github.com/spf13/cobra"
)

var configConnAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a connection",
	Long:  `Add a logical connection (REST API, database or S3 bucket) for use by fetch, run and task actions.`,
}

func initConnAdd() {
	configConnCmd.AddCommand(configConnAddCmd)
}

// addConnection saves cfg as a connection of connectionType.
func addConnection(cmd *cobra.Command, cfg *actions.ConnectionConfig, connectionType string) error {
	cfg.Type = connectionType
	cfg.ConfigFile = getConnectionGetterSetter()
	cfg.Log = newCliLogger("warn")
	cfg.Out = cmd.OutOrStdout()
	cmd.SilenceUsage = true
	return actions.RunConnectionAdd(cfg)
}
