package actions

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/relloyd/openetl/helper"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/rdbms"
)

type QueryConfig struct {
	Log            logger.Logger
	Connections    ConnectionLoader
	ConnectionName string
	Query          string
	PrintHeader    bool
	DryRun         bool
	Out            io.Writer
}

// sqlHandler writes query results as CSV.
type sqlHandler struct {
	log         logger.Logger
	w           *csv.Writer
	printHeader bool
}

func (s *sqlHandler) HandleHeader(i []interface{}) error {
	if !s.printHeader {
		return nil
	}
	if err := s.w.Write(s.strings(i)); err != nil {
		return fmt.Errorf("error outputting SQL header: %w", err)
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *sqlHandler) HandleRow(i []interface{}) error {
	if err := s.w.Write(s.strings(i)); err != nil {
		return fmt.Errorf("error outputting SQL row: %w", err)
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *sqlHandler) strings(i []interface{}) []string {
	out := make([]string, len(i))
	for idx, v := range i {
		out[idx] = helper.GetStringFromInterfacePreserveTimeZone(s.log, v)
	}
	return out
}

// RunQuery executes cfg.Query against a stored database connection, typically to inspect a
// target table or the batch table, and prints the rows as CSV.
func RunQuery(ctx context.Context, cfg *QueryConfig) error {
	out := stdout(cfg.Out)
	if cfg.DryRun {
		_, err := fmt.Fprintln(out, cfg.Query)
		return err
	}
	d, err := cfg.Connections.LoadConnection(cfg.ConnectionName)
	if err != nil {
		return err
	}
	if !d.IsDatabase() {
		return fmt.Errorf("connection %q of type %q is not a database", cfg.ConnectionName, d.Type)
	}
	db, err := rdbms.OpenConnection(ctx, cfg.Log, d)
	if err != nil {
		return err
	}
	defer db.Close()
	h := &sqlHandler{log: cfg.Log, w: csv.NewWriter(out), printHeader: cfg.PrintHeader}
	return rdbms.SqlQuery(ctx, cfg.Log, db, cfg.Query, h)
}
