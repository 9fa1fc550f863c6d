package components

import (
	"context"
	"sync/atomic"

	c "github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/rdbms"
	"github.com/relloyd/openetl/stats"
	"github.com/relloyd/openetl/stream"
)

type TableOutputConfig struct {
	Log            logger.Logger
	Name           string
	Ctx            context.Context
	InputChan      chan stream.Record
	Db             rdbms.Connector
	OutputSchema   string
	OutputTable    string
	Columns        []string // record keys, also used as target column names.
	BatchSize      int      // defaults to constants.TableInsertBatchSizeDefault.
	CreateTableDDL string   // optional statement executed before the first insert.
	StepWatcher    *stats.StepWatcher
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// NewTableOutput inserts input records into a database table in batches.
// When the input is exhausted a single record is output holding the row count in
// field Defaults.ChanField4RowsWritten.
func NewTableOutput(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*TableOutputConfig)
	if cfg.PanicHandlerFn != nil {
		defer cfg.PanicHandlerFn()
	}
	if cfg.Db == nil {
		cfg.Log.Panic(cfg.Name, " error - missing database connection.")
	}
	if cfg.InputChan == nil {
		cfg.Log.Panic(cfg.Name, " error - missing input channel.")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = c.TableInsertBatchSizeDefault
	}
	if cfg.Ctx == nil {
		cfg.Ctx = context.Background()
	}
	batch, err := rdbms.NewInsertBatch(rdbms.InsertBatchConfig{
		Log:          cfg.Log,
		DbType:       cfg.Db.GetType(),
		OutputSchema: cfg.OutputSchema,
		OutputTable:  cfg.OutputTable,
		Columns:      cfg.Columns,
	})
	if err != nil {
		cfg.Log.Panic(cfg.Name, " ", err)
	}
	outputChan = make(chan stream.Record, c.ChanSize)
	controlChan = make(chan ControlAction, 1)
	go func() {
		if cfg.PanicHandlerFn != nil {
			defer cfg.PanicHandlerFn()
		}
		if cfg.WaitCounter != nil {
			cfg.WaitCounter.Add()
			defer cfg.WaitCounter.Done()
		}
		cfg.Log.Info(cfg.Name, " is running")
		rowCount := int64(0)
		if cfg.StepWatcher != nil {
			cfg.StepWatcher.StartWatching(&rowCount, &outputChan)
			defer cfg.StepWatcher.StopWatching()
		}
		if cfg.CreateTableDDL != "" {
			cfg.Log.Debug(cfg.Name, " executing DDL: ", cfg.CreateTableDDL)
			if err := rdbms.Exec(cfg.Ctx, cfg.Db, cfg.CreateTableDDL); err != nil {
				cfg.Log.Panic(cfg.Name, " unable to create table: ", err)
			}
		}
		batch.InitBatch(cfg.BatchSize)
		var written int64
		flush := func() {
			n, err := batch.Exec(cfg.Ctx, cfg.Db)
			if err != nil {
				cfg.Log.Panic(cfg.Name, " ", err)
			}
			written += n
		}
		for {
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok {
					flush()
					cfg.Log.Info(cfg.Name, " inserted ", written, " rows into ", cfg.OutputTable)
					out := stream.NewRecord()
					out.SetData(Defaults.ChanField4RowsWritten, written)
					if !safeSend(out, outputChan, controlChan, sendNilControlResponse) {
						cfg.Log.Info(cfg.Name, " shutdown")
						return
					}
					close(outputChan)
					cfg.Log.Info(cfg.Name, " complete")
					return
				}
				full, err := batch.AddValuesToBatch(rec.GetDataKeysAsInterfaceSlice(cfg.Columns))
				if err != nil {
					cfg.Log.Panic(cfg.Name, " ", err)
				}
				atomic.AddInt64(&rowCount, 1)
				if full {
					flush()
				}
			case controlAction := <-controlChan:
				controlAction.ResponseChan <- nil
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
		}
	}()
	return
}
