package components

import (
	"encoding/csv"
	"fmt"
	"io"
	"sync/atomic"

	c "github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/stats"
	"github.com/relloyd/openetl/stream"
)

const (
	OutputFormatJSON = "json"
	OutputFormatCSV  = "csv"
)

type StdOutPassThroughConfig struct {
	Log             logger.Logger
	Name            string
	InputChan       chan stream.Record
	Writer          io.Writer // usually os.Stdout.
	Format          string    // json (default) or csv; csv writes a header line first.
	OutputFields    []string  // fields to write; leave empty for all fields in name order.
	AbortAfterCount int64
	StepWatcher     *stats.StepWatcher
	WaitCounter     ComponentWaiter
	PanicHandlerFn  PanicHandlerFunc
}

// NewStdOutPassThrough writes input records to cfg.Writer and passes them on to outputChan.
// Optionally use AbortAfterCount to cause a panic after the supplied number of records has been sent.
func NewStdOutPassThrough(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*StdOutPassThroughConfig)
	if cfg.Format == "" {
		cfg.Format = OutputFormatJSON
	}
	outputChan = make(chan stream.Record, c.ChanSize)
	controlChan = make(chan ControlAction, 1)
	go func() {
		if cfg.PanicHandlerFn != nil {
			defer cfg.PanicHandlerFn()
		}
		if cfg.Writer == nil {
			cfg.Log.Panic(cfg.Name, " bad config supplied: missing io.Writer")
		}
		if cfg.Format != OutputFormatJSON && cfg.Format != OutputFormatCSV {
			cfg.Log.Panic(cfg.Name, " unsupported output format ", cfg.Format)
		}
		cfg.Log.Info(cfg.Name, " is running")
		if cfg.WaitCounter != nil {
			cfg.WaitCounter.Add()
			defer cfg.WaitCounter.Done()
		}
		rowCount := int64(0)
		if cfg.StepWatcher != nil {
			cfg.StepWatcher.StartWatching(&rowCount, &outputChan)
			defer cfg.StepWatcher.StopWatching()
		}
		csvWriter := csv.NewWriter(cfg.Writer)
		write := func(rec stream.Record) error {
			if cfg.Format == OutputFormatCSV {
				if err := csvWriter.Write(rec.GetDataKeysAsSlice(cfg.Log, cfg.OutputFields)); err != nil {
					return err
				}
				csvWriter.Flush()
				return csvWriter.Error()
			}
			_, err := fmt.Fprintf(cfg.Writer, "%v\n", rec.GetJson(cfg.Log, cfg.OutputFields))
			return err
		}
		firstTime := true
		for {
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok {
					close(outputChan)
					cfg.Log.Info(cfg.Name, " complete")
					return
				}
				if firstTime {
					firstTime = false
					if len(cfg.OutputFields) == 0 {
						cfg.Log.Debug(cfg.Name, " defaulting to output all fields")
						cfg.OutputFields = rec.GetSortedDataMapKeys()
					}
					if cfg.Format == OutputFormatCSV {
						if err := csvWriter.Write(cfg.OutputFields); err != nil {
							cfg.Log.Panic(cfg.Name, " failed to output header: ", err)
						}
					}
				}
				if err := write(rec); err != nil {
					cfg.Log.Panic(cfg.Name, " failed to output record: ", err)
				}
				if recSentOK := safeSend(rec, outputChan, controlChan, sendNilControlResponse); !recSentOK {
					cfg.Log.Info(cfg.Name, " shutdown")
					return
				}
				count := atomic.AddInt64(&rowCount, 1)
				if cfg.AbortAfterCount != 0 && count >= cfg.AbortAfterCount {
					cfg.Log.Panic(cfg.Name, " record count exceeded")
				}
			case controlAction := <-controlChan:
				controlAction.ResponseChan <- nil
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
		}
	}()
	return outputChan, controlChan
}
