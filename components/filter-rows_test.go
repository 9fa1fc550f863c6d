package components

import (
	"testing"

	"github.com/relloyd/openetl/stream"
)

func rec(k string, v interface{}) stream.Record {
	r := stream.NewRecord()
	r.SetData(k, v)
	return r
}

func TestNewFilterRows(t *testing.T) {
	// Test 1 - the component shuts down on request.
	cfg := &FilterRowsConfig{Log: log, Name: "test 1 filter", InputChan: make(chan stream.Record), FilterType: FilterLastRow}
	_, controlChan := NewFilterRows(cfg)
	shutdown(t, controlChan)

	// Test 2 - no output while the input is still open.
	input := make(chan stream.Record, 2)
	input <- rec("myField", 1)
	input <- rec("myField", 100)
	cfg = &FilterRowsConfig{Log: log, Name: "test 2 filter", InputChan: input, FilterType: FilterGetMax, FilterMetadata: "myField"}
	out, _ := NewFilterRows(cfg)
	if err := waitForRows(t, out, 1, 1); err == nil {
		t.Fatal("Test 2 expected no output while input is open")
	}

	// Test 3 - GetMax outputs the record holding the max value.
	cfg = &FilterRowsConfig{Log: log, Name: "test 3 filter", InputChan: inputOf(rec("myField", 10), rec("myField", 30), rec("myField", 20)), FilterType: FilterGetMax, FilterMetadata: "myField"}
	out, _ = NewFilterRows(cfg)
	got := collect(t, out)
	if len(got) != 1 || got[0].GetData("myField") != 30 {
		t.Fatalf("Test 3 unexpected output %v", got)
	}

	// Test 4 - LastRow outputs only the last record.
	cfg = &FilterRowsConfig{Log: log, Name: "test 4 filter", InputChan: inputOf(rec("a", "x"), rec("a", "y")), FilterType: FilterLastRow}
	out, _ = NewFilterRows(cfg)
	got = collect(t, out)
	if len(got) != 1 || got[0].GetData("a") != "y" {
		t.Fatalf("Test 4 unexpected output %v", got)
	}

	// Test 5 - JsonLogic passes matching records.
	cfg = &FilterRowsConfig{
		Log:            log,
		Name:           "test 5 filter",
		InputChan:      inputOf(rec("n", 1.0), rec("n", 5.0), rec("n", 10.0)),
		FilterType:     FilterJsonLogic,
		FilterMetadata: `{">": [{"var": "n"}, 2]}`,
	}
	out, _ = NewFilterRows(cfg)
	got = collect(t, out)
	if len(got) != 2 || got[0].GetData("n") != 5.0 {
		t.Fatalf("Test 5 unexpected output %v", got)
	}

	// Test 6 - empty input produces no output for trailing filters.
	cfg = &FilterRowsConfig{Log: log, Name: "test 6 filter", InputChan: inputOf(), FilterType: FilterLastRow}
	out, _ = NewFilterRows(cfg)
	if got = collect(t, out); len(got) != 0 {
		t.Fatalf("Test 6 expected no output, got %v", got)
	}
}

func TestFilterSetup(t *testing.T) {
	// Test 1 - an invalid rule is rejected.
	if _, err := setupJsonLogicFilter(log, `{"bad"`); err == nil {
		t.Fatal("Test 1 expected an error for an invalid rule")
	}
	// Test 2 - AbortAfter needs an integer.
	if _, err := setupAbortAfterFilter(log, "x"); err == nil {
		t.Fatal("Test 2 expected an error for a non-integer count")
	}
	// Test 3 - AbortAfter fails after the max count.
	fn, err := setupAbortAfterFilter(log, "2")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err = fn(rec("a", i)); err != nil {
			t.Fatalf("Test 3 unexpected error on row %v: %v", i, err)
		}
	}
	if _, err = fn(rec("a", 3)); err != errFilterAbortAfterExceededCount {
		t.Fatalf("Test 3 expected count exceeded error, got %v", err)
	}
	// Test 4 - known filter names.
	if !IsFilterType("JsonLogic") || IsFilterType("nope") {
		t.Fatal("Test 4 IsFilterType gave the wrong answer")
	}
}
