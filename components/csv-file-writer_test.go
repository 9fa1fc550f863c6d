package components

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/relloyd/openetl/stream"
)

func TestNewCsvFileWriter(t *testing.T) {
	dir := t.TempDir()
	recs := make([]stream.Record, 0)
	for _, r := range testTable().Records() {
		recs = append(recs, r)
	}

	// Test 1 - rows are written in header order and each completed file is output.
	cfg := &CsvFileWriterConfig{
		Log:                      log,
		Name:                     "test 1 csv writer",
		InputChan:                inputOf(recs...),
		OutputDir:                dir,
		FileNamePrefix:           "orders",
		FileNameExtension:        "csv",
		MaxFileRows:              2,
		HeaderFields:             []string{"name", "id"},
		OutputChanField4FilePath: "#filePath",
	}
	out, _ := NewCsvFileWriter(cfg)
	got := collect(t, out)
	if len(got) != 2 {
		t.Fatalf("Test 1 expected 2 files, got %v", len(got))
	}
	first := got[0].GetData("#filePath").(string)
	if first != filepath.Join(dir, "orders_000001.csv") {
		t.Fatalf("Test 1 unexpected file name %v", first)
	}
	b, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "name,id\na,1\nb,2\n" {
		t.Fatalf("Test 1 unexpected file contents %q", string(b))
	}
	b, err = os.ReadFile(got[1].GetData("#filePath").(string))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "name,id\ntrue,3\n" {
		t.Fatalf("Test 1 unexpected second file contents %q", string(b))
	}

	// Test 2 - default output field and gzip extension.
	cfg = &CsvFileWriterConfig{
		Log:               log,
		Name:              "test 2 csv writer",
		InputChan:         inputOf(recs...),
		OutputDir:         dir,
		FileNamePrefix:    "gz",
		FileNameExtension: "csv",
		UseGzip:           true,
		HeaderFields:      []string{"id"},
	}
	out, _ = NewCsvFileWriter(cfg)
	got = collect(t, out)
	if len(got) != 1 || !strings.HasSuffix(got[0].GetData(Defaults.ChanField4CSVFileName).(string), "gz_000001.csv.gz") {
		t.Fatalf("Test 2 unexpected output %v", got)
	}

	// Test 3 - no input means no files.
	cfg = &CsvFileWriterConfig{Log: log, Name: "test 3 csv writer", InputChan: inputOf(), OutputDir: dir, HeaderFields: []string{"id"}}
	out, _ = NewCsvFileWriter(cfg)
	if got = collect(t, out); len(got) != 0 {
		t.Fatalf("Test 3 expected no files, got %v", got)
	}
}
