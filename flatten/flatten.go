// Package flatten turns nested JSON or XML documents into flat keys and columns of values.
package flatten

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/cevaris/ordered_map"
	"github.com/relloyd/openetl/helper"
)

const (
	sep = "_"
	// RootKey names the value of a document that is a bare scalar.
	RootKey = "value"
)

// Accumulate flattens every document into one RowSet.
// Keys are "<parent>_<key>" for mappings and "<parent>_<index>" for sequences. The same path
// in different documents adds to the same column. Empty mappings and sequences add no keys.
func Accumulate(docs ...interface{}) *RowSet {
	rs := NewRowSet()
	for _, d := range docs {
		AccumulateInto(rs, d)
	}
	return rs
}

// AccumulateRecords flattens each document as one record of a table. Unlike Accumulate every
// column ends up with exactly one value per document: a key missing from a document gets a
// null in that position, so values stay in the row of the document they came from.
func AccumulateRecords(docs ...interface{}) *RowSet {
	rs := NewRowSet()
	rs.aligned = true
	for _, d := range docs {
		accumulate(rs, "", d)
		rs.endRecord()
	}
	return rs
}

// AccumulateInto flattens doc into rs and returns rs.
func AccumulateInto(rs *RowSet, doc interface{}) *RowSet {
	accumulate(rs, "", doc)
	return rs
}

func accumulate(rs *RowSet, path string, v interface{}) {
	switch x := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			accumulate(rs, join(path, k), x[k])
		}
	case *ordered_map.OrderedMap:
		iter := x.IterFunc()
		for kv, ok := iter(); ok; kv, ok = iter() {
			accumulate(rs, join(path, keyString(kv.Key)), kv.Value)
		}
	case []interface{}:
		for i, item := range x {
			accumulate(rs, join(path, strconv.Itoa(i)), item)
		}
	default:
		if path == "" {
			path = RootKey
		}
		rs.Add(path, NewValue(x))
	}
}

// Row is one flattened key and its raw scalar.
type Row struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// Rows flattens a single document into rows of key and value without accumulating.
// Each key segment is reduced to [_a-z0-9]; sequence items are keyed "<key>_<index>"
// and nested items are flattened the same way.
func Rows(doc interface{}) []Row {
	return rows(nil, "", doc)
}

func rows(out []Row, path string, v interface{}) []Row {
	switch x := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = rows(out, join(path, helper.SanitizeName(k)), x[k])
		}
	case *ordered_map.OrderedMap:
		iter := x.IterFunc()
		for kv, ok := iter(); ok; kv, ok = iter() {
			out = rows(out, join(path, helper.SanitizeName(keyString(kv.Key))), kv.Value)
		}
	case []interface{}:
		for i, item := range x {
			out = rows(out, join(path, strconv.Itoa(i)), item)
		}
	default:
		if path == "" {
			path = RootKey
		}
		out = append(out, Row{Key: path, Value: x})
	}
	return out
}

// Records splits payloads into individual records before flattening.
// With an empty recordsKey a payload that is a sequence becomes one record per item.
// Otherwise the value at recordsKey in each mapping payload is used in the same way,
// and payloads without the key are kept whole.
func Records(payloads []interface{}, recordsKey string) []interface{} {
	out := make([]interface{}, 0, len(payloads))
	for _, p := range payloads {
		v := p
		if recordsKey != "" {
			if inner, ok := lookup(p, recordsKey); ok {
				v = inner
			}
		}
		if seq, ok := v.([]interface{}); ok {
			out = append(out, seq...)
		} else {
			out = append(out, v)
		}
	}
	return out
}

func lookup(doc interface{}, key string) (interface{}, bool) {
	switch x := doc.(type) {
	case map[string]interface{}:
		v, ok := x[key]
		return v, ok
	case *ordered_map.OrderedMap:
		return x.Get(key)
	}
	return nil, false
}

func join(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + sep + key
}

func keyString(k interface{}) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}
