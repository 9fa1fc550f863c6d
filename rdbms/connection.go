package rdbms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/pkg/errors"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	sf "github.com/snowflakedb/gosnowflake"
	"github.com/xo/dburl"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const snowflakeScheme = "snowflake://"

// Connection wraps a native *sql.DB with its connection type.
type Connection struct {
	*sql.DB
	DbType string
}

func (c *Connection) Close() {
	_ = c.DB.Close()
}

func (c *Connection) GetType() string {
	return c.DbType
}

func (c *Connection) Placeholder(n int) string {
	return Placeholder(c.DbType, n)
}

// Placeholder returns the bind variable syntax for argument n of dbType.
func Placeholder(dbType string, n int) string {
	switch dbType {
	case constants.ConnectionTypePostgres:
		return fmt.Sprintf("$%d", n)
	case constants.ConnectionTypeSqlServer:
		return fmt.Sprintf("@p%d", n)
	}
	return "?"
}

// supportedConnectionTypes maps connection types to the database/sql driver used to open them.
var supportedConnectionTypes = map[string]string{
	constants.ConnectionTypePostgres:  "postgres",
	constants.ConnectionTypeSqlite:    "sqlite3",
	constants.ConnectionTypeSqlServer: "sqlserver",
	constants.ConnectionTypeSnowflake: "snowflake",
}

// driverTypes maps the drivers chosen by dburl back to connection types.
var driverTypes = map[string]string{
	"postgres":  constants.ConnectionTypePostgres,
	"sqlite3":   constants.ConnectionTypeSqlite,
	"mssql":     constants.ConnectionTypeSqlServer,
	"sqlserver": constants.ConnectionTypeSqlServer,
}

// IsSupportedConnection returns true if connectionType is a database we can open.
func IsSupportedConnection(connectionType string) bool {
	_, ok := supportedConnectionTypes[connectionType]
	return ok
}

// OpenConnection opens and pings the database described by d.
func OpenConnection(ctx context.Context, log logger.Logger, d connection.Details) (*Connection, error) {
	log.Debug("opening connection type ", d.Type, " with logicalName ", d.LogicalName) // don't log password details in d.Data!
	if !IsSupportedConnection(d.Type) {
		return nil, fmt.Errorf("unsupported database type, %q", d.Type)
	}
	dsn := d.Data[connection.KeyDSN]
	if dsn == "" {
		return nil, fmt.Errorf("connection %q has no DSN", d.LogicalName)
	}
	return OpenDSN(ctx, log, d.Type, dsn)
}

// OpenDSN opens a connection of dbType using dsn.
func OpenDSN(ctx context.Context, log logger.Logger, dbType string, dsn string) (*Connection, error) {
	driver, dataSource, err := ParseDSN(dbType, dsn)
	if err != nil {
		return nil, err
	}
	conn := &Connection{DbType: dbType}
	conn.DB, err = sql.Open(driver, dataSource)
	if err != nil {
		return nil, err
	}
	if err = conn.DB.PingContext(ctx); err != nil {
		_ = conn.DB.Close()
		return nil, errors.Wrapf(err, "unable to connect to %v", RedactDSN(dsn))
	}
	log.Info("Successful connection to: ", RedactDSN(dsn))
	return conn, nil
}

// ParseDSN returns the driver name and driver-specific data source for dsn.
// Snowflake DSNs take the form snowflake://<user>:<password>@<account>/<db>/<schema>?warehouse=<wh>.
func ParseDSN(dbType string, dsn string) (driver string, dataSource string, err error) {
	if dbType == constants.ConnectionTypeSnowflake {
		dataSource = strings.TrimPrefix(dsn, snowflakeScheme)
		if _, err = sf.ParseDSN(dataSource); err != nil {
			return "", "", errors.Wrap(err, "invalid Snowflake DSN")
		}
		return "snowflake", dataSource, nil
	}
	u, err := dburl.Parse(dsn)
	if err != nil {
		return "", "", fmt.Errorf("error parsing DSN %q: %w", RedactDSN(dsn), err)
	}
	if driverTypes[u.Driver] != dbType {
		return "", "", fmt.Errorf("DSN scheme %q does not match connection type %q", u.OriginalScheme, dbType)
	}
	return u.Driver, u.DSN, nil
}

// DSNType returns the connection type implied by the scheme of dsn.
func DSNType(dsn string) (string, error) {
	if strings.HasPrefix(dsn, snowflakeScheme) {
		return constants.ConnectionTypeSnowflake, nil
	}
	u, err := dburl.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("error parsing DSN %q: %w", RedactDSN(dsn), err)
	}
	t, ok := driverTypes[u.Driver]
	if !ok {
		return "", fmt.Errorf("unsupported DSN scheme %q", u.OriginalScheme)
	}
	return t, nil
}

// RedactDSN hides any password in dsn.
func RedactDSN(dsn string) string {
	if strings.HasPrefix(dsn, snowflakeScheme) {
		if cfg, err := sf.ParseDSN(strings.TrimPrefix(dsn, snowflakeScheme)); err == nil {
			return fmt.Sprintf("%v%v:xxxxxxx@%v/%v/%v", snowflakeScheme, cfg.User, cfg.Account, cfg.Database, cfg.Schema)
		}
		return snowflakeScheme + "xxxxxxx"
	}
	u, err := dburl.Parse(dsn)
	if err != nil {
		return "xxxxxxx"
	}
	return u.Redacted()
}

// SnowflakeDSN builds a snowflake:// DSN from its parts.
func SnowflakeDSN(account, user, password, database, schema, warehouse, role string) (string, error) {
	dsn, err := sf.DSN(&sf.Config{
		Account:   account,
		User:      user,
		Password:  password,
		Database:  database,
		Schema:    schema,
		Warehouse: warehouse,
		Role:      role,
	})
	if err != nil {
		return "", err
	}
	return snowflakeScheme + dsn, nil
}
