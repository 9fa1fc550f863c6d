package rdbms

import (
	"context"
	"database/sql"
)

// Connector abstracts the database access used by components.
type Connector interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close()
	// GetType returns the connection type, e.g. postgres.
	GetType() string
	// Placeholder returns the bind variable for the nth (1-based) argument of a statement.
	Placeholder(n int) string
}

type SqlResultHandler interface {
	HandleHeader(i []interface{}) error
	HandleRow(i []interface{}) error
}
