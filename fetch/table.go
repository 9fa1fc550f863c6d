package fetch

import (
	"context"
	"time"

	"github.com/relloyd/openetl/auth"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/flatten"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/retry"
	"github.com/relloyd/openetl/table"
)

// TableRequest is one unit of work: fetch every page of an API table and normalise it.
type TableRequest struct {
	Config     Config
	Retry      retry.Policy
	Timeout    time.Duration // per attempt; zero means no timeout.
	RecordsKey string        // optional key holding the array of records in each page.
}

// NewTableRequest builds the request for tableName of the API connection src.
// Callers set the client, retry policy, timeout and page ceiling.
func NewTableRequest(log logger.Logger, src connection.Details, tableName string, tokens auth.TokenStore) (TableRequest, error) {
	def, err := connection.APIDefinitionFromDetails(log, src)
	if err != nil {
		return TableRequest{}, err
	}
	u, err := TablePageURL(def, tableName)
	if err != nil {
		return TableRequest{}, err
	}
	desc, err := auth.FromDetails(src, tokens)
	if err != nil {
		return TableRequest{}, err
	}
	return TableRequest{
		Config: Config{Log: log, URLTemplate: u, Auth: desc, Format: def.Format},
		Retry:  retry.Policy{Tries: 1},
	}, nil
}

// FetchTable runs FetchAll for req then flattens the pages into a table with one row per record.
// A zero retry policy runs a single attempt.
func FetchTable(ctx context.Context, req TableRequest) (*table.Table, error) {
	if req.Retry.Tries == 0 {
		req.Retry.Tries = 1
	}
	pages, err := FetchAll(ctx, req.Config, req.Retry, req.Timeout)
	if err != nil {
		return nil, err
	}
	rs := flatten.AccumulateRecords(flatten.Records(pages, req.RecordsKey)...)
	return table.FromRowSet(rs), nil
}
