// Package table builds column-oriented tables from flattened row sets.
package table

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/relloyd/openetl/flatten"
	"github.com/relloyd/openetl/stream"
)

// ColumnType is the output type of a column.
type ColumnType int

const (
	String ColumnType = iota
	Numeric
)

func (c ColumnType) String() string {
	if c == Numeric {
		return "numeric"
	}
	return "string"
}

// Column is a named list of values.
// Values of a Numeric column are int64 for whole numbers, json.Number for whole numbers that
// overflow int64, float64 for fractions, or nil. Values of a String column are all strings.
type Column struct {
	Name   string
	Type   ColumnType
	Values []interface{}
}

// Table is an ordered list of equal length columns.
type Table struct {
	Columns []Column
	rows    int
}

// FromRowSet converts rs into a Table.
// Row sets built by flatten.AccumulateRecords hold one value per record in every column. For
// any other row set the row count is the length of the longest column and shorter columns are
// padded with nulls at the end.
// A column is Numeric when all of its non-null values are numbers; every other column is
// coerced to strings with nulls as empty strings.
func FromRowSet(rs *flatten.RowSet) *Table {
	t := &Table{}
	for _, k := range rs.Keys() {
		if n := len(rs.Values(k)); n > t.rows {
			t.rows = n
		}
	}
	for _, k := range rs.Keys() {
		t.Columns = append(t.Columns, newColumn(k, rs.Values(k), t.rows))
	}
	return t
}

func newColumn(name string, vals []flatten.Value, rows int) Column {
	c := Column{Name: name, Type: Numeric, Values: make([]interface{}, rows)}
	allNull := true
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		allNull = false
		if v.Kind != flatten.KindNumber {
			c.Type = String
			break
		}
	}
	if allNull {
		c.Type = String
	}
	for i := 0; i < rows; i++ {
		var v flatten.Value
		if i < len(vals) {
			v = vals[i]
		}
		if c.Type == Numeric {
			c.Values[i] = numericCell(v)
		} else {
			c.Values[i] = v.String()
		}
	}
	return c
}

// numericCell keeps whole numbers exact and only falls back to float64 for fractions.
func numericCell(v flatten.Value) interface{} {
	switch x := v.V.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if !strings.ContainsAny(string(x), ".eE") {
			return x
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x
	case float64:
		return x
	}
	return nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return t.rows
}

// Header returns the column names in order.
func (t *Table) Header() []string {
	h := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		h = append(h, c.Name)
	}
	return h
}

// Column returns the column called name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Records returns one stream.Record per row.
func (t *Table) Records() []stream.Record {
	recs := make([]stream.Record, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		r := stream.NewRecord()
		for _, c := range t.Columns {
			r.SetData(c.Name, c.Values[i])
		}
		recs = append(recs, r)
	}
	return recs
}

// StringRows returns the rows as strings in column order, for CSV and terminal output.
func (t *Table) StringRows() [][]string {
	out := make([][]string, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		row := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			row = append(row, cellString(c.Values[i]))
		}
		out = append(out, row)
	}
	return out
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return string(x)
	}
	return flatten.NewValue(v).String()
}
