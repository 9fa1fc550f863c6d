package cmd

import (
	"fmt"

	"github.com/relloyd/openetl/actions"
	"github.com/spf13/cobra"
)

var connTestCfg = actions.ConnectionTestConfig{}
var connTestLogLevel string
var connTestTimeout int

var configConnTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Test a connection",
	Long: `Test a saved connection. APIs are sent one authenticated request for the first page
of a table, databases are pinged and S3 buckets are listed. The result is printed as JSON
and the command fails if the connection could not be used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		log := newCliLogger(connTestLogLevel)
		svc, err := newServices(log)
		if err != nil {
			return err
		}
		defer svc.Close()
		connTestCfg.Log = log
		connTestCfg.Connections = getConnectionLoader()
		connTestCfg.Client = svc.httpClient()
		connTestCfg.Timeout = seconds(connTestTimeout)
		if connTestCfg.Tokens, err = svc.tokenStore(cmd.Context()); err != nil {
			return err
		}
		res, err := actions.RunConnectionTest(cmd.Context(), &connTestCfg)
		if err != nil {
			return err
		}
		if err = writeIndentedJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("connection %q failed: %v", res.Connection, res.Message)
		}
		return nil
	},
}

func initConnTest() {
	configConnCmd.AddCommand(configConnTestCmd)
	configConnTestCmd.Flags().SortFlags = false
	switches.addFlag(configConnTestCmd, &connTestCfg.ConnectionName, "connection-name", "", true, "")
	switches.addFlag(configConnTestCmd, &connTestCfg.Table, "table", "", false, "")
	switches.addFlag(configConnTestCmd, &connTestTimeout, "timeout", "30", false, "")
	switches.addFlag(configConnTestCmd, &connTestLogLevel, "log-level", "warn", false, "")
}
