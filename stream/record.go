package stream

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	h "github.com/relloyd/openetl/helper"
	"github.com/relloyd/openetl/logger"
)

// Record is used to communicate data between components.
// Null values are held as nil interfaces.
type Record struct {
	data map[string]interface{}
}

// NewRecord creates a new Record and returns it by value since records travel over channels by value.
func NewRecord() Record {
	return Record{data: make(map[string]interface{})}
}

// NewRecordFromMap creates a Record holding a copy of m.
func NewRecordFromMap(m map[string]interface{}) Record {
	r := Record{data: make(map[string]interface{}, len(m))}
	for k, v := range m {
		r.data[k] = v
	}
	return r
}

func NewNilRecord() Record {
	return Record{}
}

func (sr Record) RecordIsNil() bool {
	return sr.data == nil
}

func (sr Record) SetData(name string, value interface{}) {
	sr.data[name] = value
}

// GetData returns the value of field name and panics if the field is missing.
func (sr Record) GetData(name string) interface{} {
	val, ok := sr.data[name]
	if !ok {
		panic(fmt.Sprintf("invalid key name %q supplied while trying to fetch value from record", name))
	}
	return val
}

// GetDataOK returns the value of field name and whether it exists.
func (sr Record) GetDataOK(name string) (interface{}, bool) {
	val, ok := sr.data[name]
	return val, ok
}

func (sr Record) GetDataMap() map[string]interface{} {
	return sr.data
}

func (sr Record) GetDataLen() int {
	return len(sr.data)
}

// GetDataAsStringPreserveTimeZone will convert the value of field name to a string.
// Missing fields produce an empty string.
func (sr Record) GetDataAsStringPreserveTimeZone(log logger.Logger, name string) string {
	return h.GetStringFromInterface(log, sr.data[name], false)
}

// GetDataKeysAsSlice builds a slice of strings containing the values found in sr.data for each of the supplied
// keys in slice keys.
func (sr Record) GetDataKeysAsSlice(log logger.Logger, keys []string) []string {
	retval := make([]string, 0, len(keys))
	for _, k := range keys {
		retval = append(retval, sr.GetDataAsStringPreserveTimeZone(log, k))
	}
	return retval
}

// GetDataKeysAsInterfaceSlice returns the raw values for keys in the order supplied.
func (sr Record) GetDataKeysAsInterfaceSlice(keys []string) []interface{} {
	retval := make([]interface{}, len(keys))
	for idx, k := range keys {
		retval[idx] = sr.data[k]
	}
	return retval
}

// GetSortedDataMapKeys will return a slice of the keys found in map sr.data sorted alphabetically.
func (sr Record) GetSortedDataMapKeys() []string {
	retval := make([]string, 0, len(sr.data))
	for k := range sr.data {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval
}

func (sr Record) CopyTo(t Record) {
	for k, v := range sr.data {
		t.SetData(k, v)
	}
}

// GetJson returns the JSON object for the supplied keys, preserving the key order.
// Values keep their JSON types.
func (sr Record) GetJson(log logger.Logger, keys []string) string {
	out := make([]string, len(keys))
	for idx, key := range keys { // for each key...
		jsonValue, err := json.Marshal(sr.data[key])
		if err != nil {
			log.Panic("error marshalling the value of key '", key, "' to JSON: ", err)
		}
		out[idx] = fmt.Sprintf("%q: %s", key, string(jsonValue))
	}
	return fmt.Sprintf("{%v}", strings.Join(out, ", "))
}
