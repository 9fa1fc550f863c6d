package components

import (
	"context"
	"sync/atomic"

	c "github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/fetch"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/stats"
	"github.com/relloyd/openetl/stream"
	"github.com/relloyd/openetl/table"
)

type APITableInputConfig struct {
	Log            logger.Logger
	Name           string
	Ctx            context.Context    // optional context for the fetch; defaults to context.Background().
	Request        fetch.TableRequest // the unit of work used when Table is nil.
	Table          *table.Table       // rows to emit; set this when the caller fetched the table already.
	StepWatcher    *stats.StepWatcher
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// NewAPITableInput fetches and normalises an API table, then emits one record per table row.
// Numeric columns carry float64 (or nil), every other column carries a string.
func NewAPITableInput(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*APITableInputConfig)
	if cfg.Ctx == nil {
		cfg.Ctx = context.Background()
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
		tab := cfg.Table
		if tab == nil { // if we need to fetch the table ourselves...
			var err error
			tab, err = fetch.FetchTable(cfg.Ctx, cfg.Request)
			if err != nil {
				cfg.Log.Panic(cfg.Name, " unable to fetch table: ", err)
			}
		}
		cfg.Log.Debug(cfg.Name, " emitting ", tab.NumRows(), " rows")
		for _, rec := range tab.Records() {
			if recSentOK := safeSend(rec, outputChan, controlChan, sendNilControlResponse); !recSentOK {
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
			atomic.AddInt64(&rowCount, 1)
		}
		close(outputChan)
		cfg.Log.Info(cfg.Name, " complete")
	}()
	return
}
