package cmd

import (
	"fmt"

	"github.com/relloyd/openetl/actions"
	"github.com/relloyd/openetl/config"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"github.com/spf13/cobra"
)

// dsnConnectionCommand describes a database that is saved using a DSN alone.
type dsnConnectionCommand struct {
	connectionType string
	title          string
	form           string
}

var dsnConnectionCommands = []dsnConnectionCommand{
	{constants.ConnectionTypePostgres, "PostgreSQL", "postgres://<user>:<pass>@<host>[:<port>]/<dbname>[?sslmode=disable&...]"},
	{constants.ConnectionTypeSqlite, "SQLite", "sqlite3:<path-to-database-file>"},
	{constants.ConnectionTypeSqlServer, "SQL Server", "sqlserver://<user>:<pass>@<host>/<dbname>[?<opt1>=<value1>&<opt2>=<value2>&...]"},
}

func newConnAddDsnCmd(d dsnConnectionCommand) *cobra.Command {
	cfg := &actions.ConnectionConfig{}
	var dsn string
	c := &cobra.Command{
		Use:   d.connectionType,
		Short: fmt.Sprintf("Add a %v connection", d.title),
		Long: fmt.Sprintf(`Add a %v database connection to the config store %q
by providing a DSN of the form:

%v
`, d.title, config.Connections.FullPath, d.form),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Data = map[string]string{connection.KeyDSN: dsn}
			return addConnection(cmd, cfg, d.connectionType)
		},
	}
	c.Flags().SortFlags = false
	switches.addFlag(c, &cfg.LogicalName, "connection-name", "", true, "")
	switches.addFlag(c, &cfg.Force, "force-connection", "", false, "")
	switches.addFlag(c, &dsn, "dsn", "", true, "")
	return c
}

func init() {
	for _, d := range dsnConnectionCommands {
		configConnAddCmd.AddCommand(newConnAddDsnCmd(d))
	}
}
