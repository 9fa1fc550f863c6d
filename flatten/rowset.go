package flatten

import (
	"bytes"
	"encoding/json"

	"github.com/cevaris/ordered_map"
)

// RowSet maps flattened keys to the values collected at them, in first-seen key order.
type RowSet struct {
	m       *ordered_map.OrderedMap // key -> []Value
	aligned bool                    // one value per record in every column
	records int                     // records completed while aligned
}

func NewRowSet() *RowSet {
	return &RowSet{m: ordered_map.NewOrderedMap()}
}

// Add appends v to the column for key, creating the column if required.
// When aligned, a new column starts with a null for each earlier record and a key seen
// twice in the same record keeps the last value.
func (r *RowSet) Add(key string, v Value) {
	existing, ok := r.m.Get(key)
	if !ok {
		vals := make([]Value, r.records, r.records+1)
		r.m.Set(key, append(vals, v))
		return
	}
	vals := existing.([]Value)
	if r.aligned && len(vals) > r.records {
		vals[len(vals)-1] = v
		return
	}
	r.m.Set(key, append(vals, v))
}

// endRecord pads every column with nulls so each holds one value per record.
func (r *RowSet) endRecord() {
	r.records++
	iter := r.m.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		vals := kv.Value.([]Value)
		for len(vals) < r.records {
			vals = append(vals, Value{Kind: KindNull})
		}
		r.m.Set(kv.Key, vals)
	}
}

// Keys returns the keys in the order they were first added.
func (r *RowSet) Keys() []string {
	keys := make([]string, 0, r.m.Len())
	iter := r.m.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		keys = append(keys, kv.Key.(string))
	}
	return keys
}

// Values returns the values collected for key.
func (r *RowSet) Values(key string) []Value {
	if v, ok := r.m.Get(key); ok {
		return v.([]Value)
	}
	return nil
}

// Len is the number of keys.
func (r *RowSet) Len() int {
	return r.m.Len()
}

// MarshalJSON writes the row set as an object of key to array of values in key order.
func (r *RowSet) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBufferString("{")
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.Values(k))
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
