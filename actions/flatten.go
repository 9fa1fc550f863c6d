package actions

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/fetch"
	"github.com/relloyd/openetl/flatten"
	"github.com/relloyd/openetl/table"
)

type FlattenConfig struct {
	FileName   string `errorTxt:"file" mandatory:"yes"`
	Rows       bool   // print key and value rows instead of accumulated columns.
	RecordsKey string
	Format     string // csv|json
	Out        io.Writer
}

// RunFlatten flattens a local JSON or XML document and prints the result.
func RunFlatten(cfg *FlattenConfig) error {
	if cfg.FileName == "" {
		return errors.New("please supply a JSON or XML file to flatten")
	}
	b, err := os.ReadFile(cfg.FileName)
	if err != nil {
		return errors.Wrapf(err, "unable to read %q", cfg.FileName)
	}
	doc, err := decodeDocument(cfg.FileName, b)
	if err != nil {
		return err
	}
	w := stdout(cfg.Out)
	if cfg.Rows {
		return writeFlatRows(w, flatten.Rows(doc), cfg.Format)
	}
	rs := flatten.AccumulateRecords(flatten.Records([]interface{}{doc}, cfg.RecordsKey)...)
	return writeTable(w, table.FromRowSet(rs), cfg.Format)
}

// decodeDocument decodes XML when the file name ends in .xml or the content starts with '<'.
// JSON objects keep their key order.
func decodeDocument(fileName string, b []byte) (interface{}, error) {
	if strings.ToLower(filepath.Ext(fileName)) == ".xml" || bytes.HasPrefix(bytes.TrimSpace(b), []byte("<")) {
		m, err := fetch.DecodeXML(b)
		if err != nil {
			return nil, fmt.Errorf("unable to decode XML in %q: %v", fileName, err)
		}
		return m, nil
	}
	return flatten.DecodeOrdered(bytes.NewReader(b))
}
