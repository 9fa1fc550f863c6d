package rdbms

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
)

const batchTableName = "openetl_batches"

const batchTableColumns = `batch_id varchar(36) primary key,
	start_time varchar(40) not null,
	end_time varchar(40),
	batch_type varchar(50) not null,
	status varchar(20) not null,
	integration_name varchar(255) not null,
	rows_count bigint not null,
	error_text varchar(4000)`

// Batch statuses.
const (
	BatchStatusRunning = "running"
	BatchStatusSuccess = "success"
	BatchStatusFailure = "failure"
)

// Batch records one run of an integration.
type Batch struct {
	BatchID         string     `json:"batch_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	BatchType       string     `json:"batch_type"`
	Status          string     `json:"status"`
	IntegrationName string     `json:"integration_name"`
	RowsCount       int64      `json:"rows_count"`
	Error           string     `json:"error,omitempty"`
}

// BatchStore saves Batch rows in a database table that it creates on demand.
type BatchStore struct {
	log logger.Logger
	db  Connector
	now func() time.Time
}

// NewBatchStore creates the batch table if it doesn't exist.
func NewBatchStore(ctx context.Context, log logger.Logger, db Connector) (*BatchStore, error) {
	s := &BatchStore{log: log, db: db, now: time.Now}
	ddl := fmt.Sprintf("create table if not exists %v ( %v )", batchTableName, batchTableColumns)
	if db.GetType() == constants.ConnectionTypeSqlServer {
		ddl = fmt.Sprintf("if object_id('%v', 'U') is null create table %v ( %v )", batchTableName, batchTableName, batchTableColumns)
	}
	if err := Exec(ctx, db, ddl); err != nil {
		return nil, errors.Wrap(err, "unable to create batch table")
	}
	return s, nil
}

func (s *BatchStore) ph(n int) string {
	return s.db.Placeholder(n)
}

// Create starts a new running batch and returns it.
func (s *BatchStore) Create(ctx context.Context, integrationName string, batchType string) (Batch, error) {
	b := Batch{
		BatchID:         uuid.New().String(),
		StartTime:       s.now().UTC(),
		BatchType:       batchType,
		Status:          BatchStatusRunning,
		IntegrationName: integrationName,
	}
	q := fmt.Sprintf("insert into %v (batch_id, start_time, batch_type, status, integration_name, rows_count) values (%v,%v,%v,%v,%v,%v)",
		batchTableName, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6))
	_, err := s.db.ExecContext(ctx, q, b.BatchID, b.StartTime.Format(time.RFC3339Nano), b.BatchType, b.Status, b.IntegrationName, 0)
	if err != nil {
		return b, errors.Wrap(err, "unable to create batch")
	}
	s.log.Debug("created batch ", b.BatchID, " for integration ", integrationName)
	return b, nil
}

// Finish marks the batch complete with the row count and the error, if any.
func (s *BatchStore) Finish(ctx context.Context, batchID string, rows int64, runErr error) error {
	status := BatchStatusSuccess
	errText := ""
	if runErr != nil {
		status = BatchStatusFailure
		errText = runErr.Error()
		if len(errText) > 4000 {
			errText = errText[:4000]
		}
	}
	q := fmt.Sprintf("update %v set end_time = %v, status = %v, rows_count = %v, error_text = %v where batch_id = %v",
		batchTableName, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	res, err := s.db.ExecContext(ctx, q, s.now().UTC().Format(time.RFC3339Nano), status, rows, errText, batchID)
	if err != nil {
		return errors.Wrapf(err, "unable to finish batch %v", batchID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("batch %v not found", batchID)
	}
	return nil
}

// Get returns the batch with batchID.
func (s *BatchStore) Get(ctx context.Context, batchID string) (Batch, error) {
	q := fmt.Sprintf("select batch_id, start_time, end_time, batch_type, status, integration_name, rows_count, error_text from %v where batch_id = %v",
		batchTableName, s.ph(1))
	var b Batch
	var start string
	var end, errText sql.NullString
	err := s.db.QueryRowContext(ctx, q, batchID).Scan(&b.BatchID, &start, &end, &b.BatchType, &b.Status, &b.IntegrationName, &b.RowsCount, &errText)
	if errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("batch %v not found", batchID)
	} else if err != nil {
		return b, errors.Wrapf(err, "unable to read batch %v", batchID)
	}
	if b.StartTime, err = time.Parse(time.RFC3339Nano, start); err != nil {
		return b, err
	}
	if end.Valid && end.String != "" {
		t, err := time.Parse(time.RFC3339Nano, end.String)
		if err != nil {
			return b, err
		}
		b.EndTime = &t
	}
	b.Error = errText.String
	return b, nil
}
