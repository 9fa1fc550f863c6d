package components

import (
	"errors"
	"testing"
	"time"

	"github.com/relloyd/openetl/flatten"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/stream"
	"github.com/relloyd/openetl/table"
)

var log = logger.NewLogger("components test", "error", true)

// waitForRows returns an error if waitForNumRows are not read from dataChan before the timeout.
func waitForRows(t *testing.T, dataChan chan stream.Record, waitForNumRows int, timeoutSec int) error {
	t.Helper()
	done := make(chan struct{}, 1)
	go func() {
		idx := 0
		for range dataChan {
			idx++
			if idx >= waitForNumRows {
				done <- struct{}{}
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Duration(timeoutSec) * time.Second):
		return errors.New("timeout waiting for expected number of rows")
	}
	return nil
}

// collect reads dataChan until it is closed.
func collect(t *testing.T, dataChan chan stream.Record) []stream.Record {
	t.Helper()
	out := make([]stream.Record, 0)
	timeout := time.After(10 * time.Second)
	for {
		select {
		case rec, ok := <-dataChan:
			if !ok {
				return out
			}
			out = append(out, rec)
		case <-timeout:
			t.Fatal("timeout waiting for channel to close")
		}
	}
}

func inputOf(recs ...stream.Record) chan stream.Record {
	ch := make(chan stream.Record, len(recs))
	for _, r := range recs {
		ch <- r
	}
	close(ch)
	return ch
}

func testTable() *table.Table {
	return table.FromRowSet(flatten.AccumulateRecords(
		map[string]interface{}{"id": 1, "name": "a"},
		map[string]interface{}{"id": 2, "name": "b"},
		map[string]interface{}{"id": 3, "name": true},
	))
}

func shutdown(t *testing.T, controlChan chan ControlAction) {
	t.Helper()
	responseChan := make(chan error, 1)
	controlChan <- ControlAction{Action: Shutdown, ResponseChan: responseChan}
	select {
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for shutdown")
	case err := <-responseChan:
		if err != nil {
			t.Fatal(err)
		}
	}
}
