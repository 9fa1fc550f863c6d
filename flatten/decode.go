package flatten

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cevaris/ordered_map"
	"github.com/pkg/errors"
)

// DecodeOrdered decodes one JSON document keeping object keys in document order.
// Objects become *ordered_map.OrderedMap, arrays []interface{} and numbers json.Number.
func DecodeOrdered(r io.Reader) (interface{}, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode JSON document")
	}
	if _, err = dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON document")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := ordered_map.NewOrderedMap()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				k, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", kt)
				}
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				m.Set(k, v)
			}
			if _, err = dec.Token(); err != nil { // closing brace
				return nil, err
			}
			return m, nil
		case '[':
			s := make([]interface{}, 0)
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				s = append(s, v)
			}
			if _, err = dec.Token(); err != nil { // closing bracket
				return nil, err
			}
			return s, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	}
	return tok, nil
}
