package actions

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/relloyd/openetl/flatten"
	"github.com/relloyd/openetl/table"
)

const (
	OutputFormatCSV  = "csv"
	OutputFormatJSON = "json"
	OutputFormatYAML = "yaml"
)

// writeTable prints tab as CSV with a header line or as a JSON array of objects.
func writeTable(w io.Writer, tab *table.Table, format string) error {
	switch strings.ToLower(format) {
	case OutputFormatCSV, "":
		cw := csv.NewWriter(w)
		if err := cw.Write(tab.Header()); err != nil {
			return fmt.Errorf("error writing CSV header: %v", err)
		}
		if err := cw.WriteAll(tab.StringRows()); err != nil {
			return fmt.Errorf("error writing CSV rows: %v", err)
		}
		return nil
	case OutputFormatJSON:
		rows := make([]map[string]interface{}, 0, tab.NumRows())
		for _, r := range tab.Records() {
			rows = append(rows, r.GetDataMap())
		}
		return writeJSON(w, rows)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

// writeFlatRows prints key and value pairs as CSV or JSON.
func writeFlatRows(w io.Writer, rows []flatten.Row, format string) error {
	switch strings.ToLower(format) {
	case OutputFormatCSV, "":
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"key", "value"})
		for _, r := range rows {
			_ = cw.Write([]string{r.Key, flatten.NewValue(r.Value).String()})
		}
		cw.Flush()
		return cw.Error()
	case OutputFormatJSON:
		return writeJSON(w, rows)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
