package file

import (
	"compress/gzip"
	"encoding/csv"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/relloyd/openetl/logger"
)

var header = []string{"id", "name"}

var data = [][]string{
	{"1", "alpha"},
	{"2", "beta, with comma"},
	{"3", "gamma"},
	{"4", "delta"}}

func readCSV(t *testing.T, name string, gz bool) [][]string {
	f, err := os.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var r *csv.Reader
	if gz {
		z, err := gzip.NewReader(f)
		if err != nil {
			t.Fatal(err)
		}
		r = csv.NewReader(z)
	} else {
		r = csv.NewReader(f)
	}
	recs, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func TestCSVFileOutputRotatesByRows(t *testing.T) {
	log := logger.NewLogger("csv test", "error", true)
	out, err := NewCSVFileOutput(log, CSVOptions{Directory: t.TempDir(), Prefix: "test", MaxFileRows: 3})
	if err != nil {
		t.Fatal(err)
	}
	out.SetHeader(header)
	fileNames := make([]string, 0)
	for _, rec := range data {
		name, err := out.WriteRecord(rec)
		if err != nil {
			t.Fatal(err)
		}
		if name != "" {
			fileNames = append(fileNames, name)
		}
	}
	if err = out.Close(); err != nil {
		t.Fatal(err)
	}

	// Test 1 - two files, each with the header.
	if len(fileNames) != 2 || !reflect.DeepEqual(fileNames, out.ListOfOutputFiles) {
		t.Fatalf("expected 2 files, got %v", fileNames)
	}
	r1 := readCSV(t, fileNames[0], false)
	if !reflect.DeepEqual(r1, append([][]string{header}, data[:3]...)) {
		t.Fatalf("unexpected contents of file 1: %v", r1)
	}
	r2 := readCSV(t, fileNames[1], false)
	if !reflect.DeepEqual(r2, [][]string{header, data[3]}) {
		t.Fatalf("unexpected contents of file 2: %v", r2)
	}
	if out.TotalRows() != 4 {
		t.Fatalf("expected 4 rows in total, got %v", out.TotalRows())
	}
}

func TestCSVFileOutputGzip(t *testing.T) {
	log := logger.NewLogger("csv test", "error", true)
	out, err := NewCSVFileOutput(log, CSVOptions{Directory: t.TempDir(), Prefix: "test", Extension: ".csv.gzip", UseGzip: true})
	if err != nil {
		t.Fatal(err)
	}
	out.SetHeader(header)
	for _, rec := range data {
		if _, err = out.WriteRecord(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err = out.Close(); err != nil {
		t.Fatal(err)
	}
	if len(out.ListOfOutputFiles) != 1 || !strings.HasSuffix(out.ListOfOutputFiles[0], "_000001.csv.gz") {
		t.Fatalf("unexpected file names %v", out.ListOfOutputFiles)
	}
	recs := readCSV(t, out.ListOfOutputFiles[0], true)
	if len(recs) != 5 || !reflect.DeepEqual(recs[0], header) {
		t.Fatalf("unexpected gzip contents %v", recs)
	}
}

func TestCSVFileOutputRotatesByBytes(t *testing.T) {
	log := logger.NewLogger("csv test", "error", true)
	out, err := NewCSVFileOutput(log, CSVOptions{Directory: t.TempDir(), Prefix: "bytes", MaxFileBytes: 5})
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range data {
		if _, err = out.WriteRecord(rec); err != nil {
			t.Fatal(err)
		}
	}
	_ = out.Close()
	// Every record is longer than the limit so each gets its own file.
	if len(out.ListOfOutputFiles) != len(data) {
		t.Fatalf("expected %v files, got %v", len(data), len(out.ListOfOutputFiles))
	}
}
