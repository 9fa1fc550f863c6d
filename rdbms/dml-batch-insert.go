package rdbms

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/table"
)

// InsertBatchConfig describes the target of a batched INSERT.
type InsertBatchConfig struct {
	Log          logger.Logger
	DbType       string
	OutputSchema string
	OutputTable  string
	Columns      []string // target column names in bind order
}

// SqlInsertTxtBatch collects rows and generates a multi-row INSERT statement for them.
type SqlInsertTxtBatch struct {
	InsertBatchConfig
	sqlStmtTemplate string
	sqlStmt         string
	sqlValues       []interface{}
	batchSize       int
	rowsInBatch     int
	stmtRows        int // number of rows the cached sqlStmt was built for
}

// NewInsertBatch returns a batch ready for InitBatch.
func NewInsertBatch(cfg InsertBatchConfig) (*SqlInsertTxtBatch, error) {
	if len(cfg.Columns) == 0 {
		return nil, errors.New("no columns supplied for INSERT batch")
	}
	target, err := table.QualifiedName(cfg.DbType, cfg.OutputSchema, cfg.OutputTable)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(cfg.Columns))
	for _, c := range cfg.Columns {
		q, _ := table.QuoteIdentifier(cfg.DbType, c)
		cols = append(cols, q)
	}
	o := &SqlInsertTxtBatch{InsertBatchConfig: cfg}
	o.sqlStmtTemplate = "insert into " + target + " (" + strings.Join(cols, ",") + ") values "
	cfg.Log.Debug("setup INSERT generator with SQL (VALUES pending): ", o.sqlStmtTemplate)
	return o, nil
}

// InitBatch resets the batch to hold up to batchSize rows.
func (o *SqlInsertTxtBatch) InitBatch(batchSize int) {
	o.batchSize = batchSize
	o.rowsInBatch = 0
	o.sqlValues = make([]interface{}, 0, o.batchSize*len(o.Columns))
}

// AddValuesToBatch adds one row and reports whether the batch is now full.
func (o *SqlInsertTxtBatch) AddValuesToBatch(values []interface{}) (batchIsFull bool, err error) {
	if o.rowsInBatch >= o.batchSize {
		return true, errors.New("no more rows allowed in INSERT batch")
	}
	if len(values) != len(o.Columns) {
		return false, errors.New("the number of values supplied does not match the number of table columns")
	}
	o.sqlValues = append(o.sqlValues, values...)
	o.rowsInBatch++
	return o.rowsInBatch >= o.batchSize, nil
}

// RowsInBatch returns the number of rows added since InitBatch.
func (o *SqlInsertTxtBatch) RowsInBatch() int {
	return o.rowsInBatch
}

func (o *SqlInsertTxtBatch) GetValues() []interface{} {
	return o.sqlValues
}

// GetStatement returns the INSERT for the rows currently in the batch.
// The statement is cached while the row count stays the same.
func (o *SqlInsertTxtBatch) GetStatement() string {
	if o.stmtRows == o.rowsInBatch && o.sqlStmt != "" {
		return o.sqlStmt
	}
	allRows := strings.Builder{}
	valIdx := 1
	for rowIdx := 0; rowIdx < o.rowsInBatch; rowIdx++ {
		if rowIdx > 0 {
			allRows.WriteString(",")
		}
		allRows.WriteString("(")
		for idy := range o.Columns {
			if idy > 0 {
				allRows.WriteString(",")
			}
			allRows.WriteString(Placeholder(o.DbType, valIdx))
			valIdx++
		}
		allRows.WriteString(")")
	}
	o.sqlStmt = o.sqlStmtTemplate + allRows.String()
	o.stmtRows = o.rowsInBatch
	o.Log.Trace("SQL batch INSERT generated statement: ", o.sqlStmt)
	return o.sqlStmt
}

// Exec runs the batch against db and resets it. An empty batch is a no-op.
func (o *SqlInsertTxtBatch) Exec(ctx context.Context, db Connector) (int64, error) {
	if o.rowsInBatch == 0 {
		return 0, nil
	}
	res, err := db.ExecContext(ctx, o.GetStatement(), o.sqlValues...)
	if err != nil {
		return 0, errors.Wrapf(err, "error executing INSERT batch of %v rows", o.rowsInBatch)
	}
	n, err := res.RowsAffected()
	if err != nil {
		n = int64(o.rowsInBatch)
	}
	o.InitBatch(o.batchSize)
	return n, nil
}
