package rdbms

import (
	"context"
	"fmt"

	"github.com/relloyd/openetl/logger"
)

// SqlQuery runs sqltext and passes the column names then each row to handler i.
func SqlQuery(ctx context.Context, log logger.Logger, db Connector, sqltext string, i SqlResultHandler, args ...interface{}) error {
	rows, err := db.QueryContext(ctx, sqltext, args...)
	if err != nil {
		return fmt.Errorf("error during database query using SQL: '%v': %w", sqltext, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	log.Debug("query columns: ", cols)
	// Scan the values dynamically.
	scanPtrs := make([]interface{}, len(cols))
	scanVals := make([]interface{}, len(cols))
	for idx := range cols {
		scanPtrs[idx] = &scanVals[idx]
	}
	header := make([]interface{}, len(cols))
	for idx := range cols {
		header[idx] = cols[idx]
	}
	if err = i.HandleHeader(header); err != nil {
		return err
	}
	for rows.Next() {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = rows.Scan(scanPtrs...); err != nil {
			return fmt.Errorf("error scanning row: %v", err)
		}
		row := make([]interface{}, len(cols))
		copy(row, scanVals)
		if err = i.HandleRow(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Exec runs a single statement, typically DDL.
func Exec(ctx context.Context, db Connector, sqltext string, args ...interface{}) error {
	if _, err := db.ExecContext(ctx, sqltext, args...); err != nil {
		return fmt.Errorf("error executing SQL: '%v': %w", sqltext, err)
	}
	return nil
}
