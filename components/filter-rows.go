package components

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/diegoholiveira/jsonlogic"
	c "github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/helper"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/stats"
	"github.com/relloyd/openetl/stream"
)

type FilterType string

type filterSetupFunc func(log logger.Logger, metadata string) (filterFunc, error)

// filterFunc is called once per record and finally with a nil record so it can emit trailing output.
type filterFunc func(data stream.Record) (stream.Record, error)

const (
	FilterGetMax     FilterType = "GetMax"
	FilterLastRow    FilterType = "LastRow"
	FilterJsonLogic  FilterType = "JsonLogic"
	FilterAbortAfter FilterType = "AbortAfter"
)

var filterTypes = map[FilterType]filterSetupFunc{
	FilterGetMax:     setupFilterGetMax,     // metadata is the field to find the max value of.
	FilterLastRow:    setupLastRowInStream,  // metadata is unused.
	FilterJsonLogic:  setupJsonLogicFilter,  // metadata is the rule.
	FilterAbortAfter: setupAbortAfterFilter, // metadata is the max row count.
}

var errFilterAbortAfterExceededCount = errors.New("record count exceeded")

// IsFilterType returns true if t names a known filter.
func IsFilterType(t string) bool {
	_, ok := filterTypes[FilterType(t)]
	return ok
}

type FilterRowsConfig struct {
	Log            logger.Logger
	Name           string
	InputChan      chan stream.Record
	FilterType     FilterType // one of the FilterX constants.
	FilterMetadata string
	StepWatcher    *stats.StepWatcher
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// NewFilterRows outputs the input rows that pass the configured filter.
func NewFilterRows(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*FilterRowsConfig)
	if cfg.PanicHandlerFn != nil {
		defer cfg.PanicHandlerFn()
	}
	fnSetup, ok := filterTypes[cfg.FilterType]
	if !ok {
		cfg.Log.Panic(cfg.Name, " unable to find filter function using name ", cfg.FilterType)
	}
	fnFilter, err := fnSetup(cfg.Log, cfg.FilterMetadata)
	if err != nil {
		cfg.Log.Panic(cfg.Name, " unable to setup filter ", cfg.FilterType, ": ", err)
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
		rowCount := int64(0)
		if cfg.StepWatcher != nil {
			cfg.StepWatcher.StartWatching(&rowCount, &outputChan)
			defer cfg.StepWatcher.StopWatching()
		}
		cfg.Log.Info(cfg.Name, " is running")
		filterAndSend := func(rec stream.Record) (sentOK bool) {
			data, err := fnFilter(rec)
			if err != nil { // if the filter failed, which may be deliberate...
				cfg.Log.Panic(cfg.Name, " aborting due to error: ", err)
			}
			if data.RecordIsNil() {
				return true
			}
			return safeSend(data, outputChan, controlChan, sendNilControlResponse)
		}
		inputCount := 0
		for {
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok {
					if inputCount > 0 { // the filter may want to output a final record.
						if !filterAndSend(stream.NewNilRecord()) {
							cfg.Log.Info(cfg.Name, " shutdown")
							return
						}
					}
					close(outputChan)
					cfg.Log.Info(cfg.Name, " complete")
					return
				}
				inputCount++
				atomic.AddInt64(&rowCount, 1)
				if !filterAndSend(rec) {
					cfg.Log.Info(cfg.Name, " shutdown")
					return
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

// setupFilterGetMax remembers the record with the greatest string value of field metadata
// and outputs it when called with a nil record.
func setupFilterGetMax(log logger.Logger, metadata string) (filterFunc, error) {
	if metadata == "" {
		return nil, fmt.Errorf("%v requires a field name", FilterGetMax)
	}
	var maxRec stream.Record
	var maxValue string
	return func(data stream.Record) (stream.Record, error) {
		if data.RecordIsNil() {
			if maxRec.RecordIsNil() {
				return stream.NewNilRecord(), nil
			}
			log.Trace("setupFilterGetMax found max record: ", maxRec.GetDataMap())
			return maxRec, nil
		}
		v := helper.GetStringFromInterfaceUseUtcTime(log, data.GetDataMap()[metadata])
		if maxRec.RecordIsNil() || v > maxValue {
			maxRec = stream.NewRecord()
			data.CopyTo(maxRec)
			maxValue = v
		}
		return stream.NewNilRecord(), nil
	}, nil
}

// setupLastRowInStream outputs only the last record seen, when called with a nil record.
func setupLastRowInStream(_ logger.Logger, _ string) (filterFunc, error) {
	last := stream.NewNilRecord()
	return func(data stream.Record) (stream.Record, error) {
		if data.RecordIsNil() {
			return last, nil
		}
		last = stream.NewRecord()
		data.CopyTo(last)
		return stream.NewNilRecord(), nil
	}, nil
}

// setupJsonLogicFilter passes records for which the JSON Logic rule in metadata returns true.
func setupJsonLogicFilter(log logger.Logger, metadata string) (filterFunc, error) {
	if !jsonlogic.IsValid(strings.NewReader(metadata)) {
		return nil, fmt.Errorf("invalid %v rule: %v", FilterJsonLogic, metadata)
	}
	var result bytes.Buffer
	return func(data stream.Record) (stream.Record, error) {
		if data.RecordIsNil() {
			return stream.NewNilRecord(), nil
		}
		result.Reset()
		if err := applyJsonLogic(data, metadata, &result); err != nil {
			return stream.NewNilRecord(), err
		}
		if strings.TrimSpace(result.String()) == "true" {
			return data, nil
		}
		return stream.NewNilRecord(), nil
	}, nil
}

// setupAbortAfterFilter passes records through and fails once more than metadata records were seen.
// A max of 0 disables the check.
func setupAbortAfterFilter(_ logger.Logger, metadata string) (filterFunc, error) {
	count := 0
	max, err := strconv.Atoi(metadata)
	if err != nil {
		return nil, fmt.Errorf("error converting filter metadata value '%v' to an integer: %w", metadata, err)
	}
	return func(data stream.Record) (stream.Record, error) {
		if !data.RecordIsNil() {
			count++
			if max != 0 && count > max {
				return stream.NewNilRecord(), errFilterAbortAfterExceededCount
			}
		}
		return data, nil
	}, nil
}
