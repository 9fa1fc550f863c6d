package cmd

import (
	"fmt"

	"github.com/relloyd/openetl/actions"
	"github.com/relloyd/openetl/config"
	"github.com/spf13/cobra"
)

var configConnListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Print all connections",
	Long: fmt.Sprintf(`List connections stored in config store %q
by printing them all to STDOUT with passwords, tokens and secrets redacted`,
		config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		return actions.RunConnectionList(&actions.ConnectionConfig{
			ConfigFile: getConnectionGetterSetter(),
			Out:        cmd.OutOrStdout(),
		})
	},
}

func initConnList() {
	configConnCmd.AddCommand(configConnListCmd)
}
