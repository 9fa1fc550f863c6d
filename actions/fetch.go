package actions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relloyd/openetl/auth"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/fetch"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/retry"
	"github.com/relloyd/openetl/table"
)

type FetchConfig struct {
	Log          logger.Logger
	Connections  ConnectionLoader
	Tokens       auth.TokenStore
	Client       *http.Client
	SourceString connection.ConnectionObject
	RecordsKey   string
	Format       string // csv|json
	MaxPages     int
	Retry        retry.Policy
	Timeout      time.Duration
	Out          io.Writer
}

// FetchTable fetches and normalises the API table named by cfg.SourceString.
func FetchTable(ctx context.Context, cfg *FetchConfig) (*table.Table, error) {
	connectionName, _, tableName := cfg.SourceString.Split()
	if tableName == "" {
		return nil, fmt.Errorf("please supply a source of the form <connection>.<table>, got %q", cfg.SourceString.ConnectionObject)
	}
	d, err := cfg.Connections.LoadConnection(connectionName)
	if err != nil {
		return nil, err
	}
	if d.Type != constants.ConnectionTypeAPI {
		return nil, fmt.Errorf("connection %q is of type %q; only %q connections can be fetched", connectionName, d.Type, constants.ConnectionTypeAPI)
	}
	req, err := fetch.NewTableRequest(cfg.Log, d, tableName, cfg.Tokens)
	if err != nil {
		return nil, err
	}
	req.Config.Client = cfg.Client
	req.Config.MaxPages = cfg.MaxPages
	req.Retry = cfg.Retry
	req.Timeout = cfg.Timeout
	req.RecordsKey = cfg.RecordsKey
	return fetch.FetchTable(ctx, req)
}

// RunFetch prints the table fetched by FetchTable.
func RunFetch(ctx context.Context, cfg *FetchConfig) error {
	tab, err := FetchTable(ctx, cfg)
	if err != nil {
		return err
	}
	cfg.Log.Info("fetched ", tab.NumRows(), " rows from ", cfg.SourceString.ConnectionObject)
	return writeTable(stdout(cfg.Out), tab, cfg.Format)
}
