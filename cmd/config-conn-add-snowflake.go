package cmd

import (
	"fmt"

	"github.com/relloyd/openetl/actions"
	"github.com/relloyd/openetl/config"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/rdbms"
	"github.com/spf13/cobra"
)

var configConnSnowflakeCfg = &actions.ConnectionConfig{}

var snowflakeConn = struct {
	dsn, account, user, password, database, schema, warehouse, role string
}{}

var configConnAddSnowflakeCmd = &cobra.Command{
	Use:   "snowflake",
	Short: "Add a Snowflake connection",
	Long: fmt.Sprintf(`Add a Snowflake connection to the config store %q
by providing a DSN of the form:

snowflake://<user>:<password>@<account>/<database-name>/<schema>?warehouse=<warehouse>&role=<role>

or the individual flags below. The DSN takes priority.`,
		config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn := snowflakeConn.dsn
		if dsn == "" {
			var err error
			if dsn, err = rdbms.SnowflakeDSN(snowflakeConn.account, snowflakeConn.user, snowflakeConn.password,
				snowflakeConn.database, snowflakeConn.schema, snowflakeConn.warehouse, snowflakeConn.role); err != nil {
				return err
			}
		}
		configConnSnowflakeCfg.Data = map[string]string{connection.KeyDSN: dsn}
		return addConnection(cmd, configConnSnowflakeCfg, constants.ConnectionTypeSnowflake)
	},
}

func init() {
	configConnAddCmd.AddCommand(configConnAddSnowflakeCmd)
	configConnAddSnowflakeCmd.Flags().SortFlags = false
	switches.addFlag(configConnAddSnowflakeCmd, &configConnSnowflakeCfg.LogicalName, "connection-name", "", true, "")
	switches.addFlag(configConnAddSnowflakeCmd, &configConnSnowflakeCfg.Force, "force-connection", "", false, "")
	switches.addFlag(configConnAddSnowflakeCmd, &snowflakeConn.dsn, "dsn", "", false, "")
	switches.addFlag(configConnAddSnowflakeCmd, &snowflakeConn.account, "snowflake-account", "", false, "")
	switches.addFlag(configConnAddSnowflakeCmd, &snowflakeConn.user, "snowflake-user", "", false, "")
	switches.addFlag(configConnAddSnowflakeCmd, &snowflakeConn.password, "password", "", false, "")
	switches.addFlag(configConnAddSnowflakeCmd, &snowflakeConn.database, "snowflake-database", "", false, "")
	switches.addFlag(configConnAddSnowflakeCmd, &snowflakeConn.schema, "snowflake-schema", "", false, "")
	switches.addFlag(configConnAddSnowflakeCmd, &snowflakeConn.warehouse, "snowflake-warehouse", "", false, "")
	switches.addFlag(configConnAddSnowflakeCmd, &snowflakeConn.role, "snowflake-role", "", false, "")
}
