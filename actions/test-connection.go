package actions

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/relloyd/openetl/auth"
	"github.com/relloyd/openetl/aws/s3"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/fetch"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/rdbms"
)

type ConnectionTestConfig struct {
	Log            logger.Logger
	Connections    ConnectionLoader
	Tokens         auth.TokenStore
	Client         *http.Client
	S3Client       s3.BasicClient // optional override used for s3 connections.
	ConnectionName string
	Table          string // API table to request; defaults to the first table.
	Timeout        time.Duration
}

// ConnectionTestResult reports whether a connection could be used.
type ConnectionTestResult struct {
	Connection string      `json:"connection"`
	Type       string      `json:"type"`
	OK         bool        `json:"ok"`
	StatusCode int         `json:"statusCode,omitempty"`
	Message    string      `json:"message"`
	Body       interface{} `json:"body,omitempty"`
}

// RunConnectionTest tries the named connection. APIs are sent one authenticated request for
// the first page of a table, databases are pinged and s3 buckets are listed.
// A failed test is reported in the result; an error means the test could not be attempted.
func RunConnectionTest(ctx context.Context, cfg *ConnectionTestConfig) (ConnectionTestResult, error) {
	d, err := cfg.Connections.LoadConnection(cfg.ConnectionName)
	if err != nil {
		return ConnectionTestResult{}, err
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	res := ConnectionTestResult{Connection: cfg.ConnectionName, Type: d.Type}
	switch {
	case d.Type == constants.ConnectionTypeAPI:
		return testAPIConnection(ctx, cfg, d, res)
	case d.IsDatabase():
		conn, err := rdbms.OpenConnection(ctx, cfg.Log, d)
		if err != nil {
			res.Message = err.Error()
			return res, nil
		}
		conn.Close()
		res.OK = true
		res.Message = "connected"
		return res, nil
	case d.Type == constants.ConnectionTypeS3:
		bucket, err := s3.BucketFromDetails(d)
		if err != nil {
			return res, err
		}
		client := cfg.S3Client
		if client == nil {
			if client, err = s3.NewBasicClient(bucket); err != nil {
				return res, err
			}
		}
		if _, err = client.List(ctx, ""); err != nil {
			res.Message = err.Error()
			return res, nil
		}
		res.OK = true
		res.Message = "listed " + bucket.URL()
		return res, nil
	}
	return res, fmt.Errorf("unable to test connection %q of type %q", cfg.ConnectionName, d.Type)
}

func testAPIConnection(ctx context.Context, cfg *ConnectionTestConfig, d connection.Details, res ConnectionTestResult) (ConnectionTestResult, error) {
	def, err := connection.APIDefinitionFromDetails(cfg.Log, d)
	if err != nil {
		return res, err
	}
	tableName := cfg.Table
	if tableName == "" {
		if names := def.TableNames(); len(names) > 0 {
			tableName = names[0]
		}
	}
	req, err := fetch.NewTableRequest(cfg.Log, d, tableName, cfg.Tokens)
	if err != nil {
		return res, err
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	u := fetch.PageURL(req.Config.URLTemplate, constants.PageStart)
	tr, err := auth.TestConnection(ctx, client, u, req.Config.Auth)
	if err != nil {
		res.Message = err.Error()
		return res, nil
	}
	res.OK = tr.OK
	res.StatusCode = tr.StatusCode
	res.Body = tr.Body
	if tr.OK {
		res.Message = "connected to " + u
	} else {
		res.Message = fmt.Sprintf("received HTTP status %v from %v", tr.StatusCode, u)
	}
	return res, nil
}
