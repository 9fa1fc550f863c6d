package fetch

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/cevaris/ordered_map"
	"github.com/pkg/errors"
	"github.com/relloyd/openetl/flatten"
)

const (
	FormatJSON = "json"
	FormatXML  = "xml"
)

// DecodeJSON decodes a single JSON document keeping object keys in document order.
// Objects are *ordered_map.OrderedMap and numbers are json.Number so integers survive
// without float rounding.
func DecodeJSON(body []byte) (interface{}, error) {
	return flatten.DecodeOrdered(bytes.NewReader(body))
}

// DecodeXML decodes the direct children of the root element into an ordered map of
// element name to text content, in document order. Nested elements are not descended; a
// repeated name keeps its first position and its last value.
// A body without exactly one root element, or with text outside it, is an error.
func DecodeXML(body []byte) (*ordered_map.OrderedMap, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	out := ordered_map.NewOrderedMap()
	depth := 0
	roots := 0
	var name string
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrap(err, "unable to decode XML document")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 {
					return nil, fmt.Errorf("unexpected second root element <%v>", t.Name.Local)
				}
			}
			depth++
			if depth == 2 {
				name = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return nil, errors.New("unexpected text outside the root element")
			}
			if depth == 2 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				out.Set(name, strings.TrimSpace(text.String()))
			}
			depth--
		}
	}
	if roots == 0 {
		return nil, errors.New("no root element in XML document")
	}
	if depth != 0 {
		return nil, errors.New("unbalanced XML document")
	}
	return out, nil
}

// payloadHash returns the SHA-256 of a canonical encoding of v.
// Mapping keys are sorted, ordered or not, and numbers are compared by value so 1, 1.0
// and 1e0 hash the same while integers beyond float64 precision stay distinct.
func payloadHash(v interface{}) ([sha256.Size]byte, error) {
	var buf bytes.Buffer
	if err := canonical(&buf, v); err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(buf.Bytes()), nil
}

func canonical(buf *bytes.Buffer, v interface{}) error {
	switch x := v.(type) {
	case nil:
		buf.WriteByte('n')
	case bool:
		if x {
			buf.WriteByte('t')
		} else {
			buf.WriteByte('f')
		}
	case string:
		writeString(buf, x)
	case json.Number:
		r, ok := new(big.Rat).SetString(string(x))
		if !ok {
			return fmt.Errorf("invalid number %q", x)
		}
		writeNumber(buf, r)
	case float64:
		r := new(big.Rat).SetFloat64(x)
		if r == nil {
			return fmt.Errorf("invalid number %v", x)
		}
		writeNumber(buf, r)
	case []interface{}:
		buf.WriteString("[" + strconv.Itoa(len(x)) + ":")
		for _, item := range x {
			if err := canonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		return writeObject(buf, keys, func(k string) interface{} { return x[k] })
	case *ordered_map.OrderedMap:
		keys := make([]string, 0, x.Len())
		iter := x.IterFunc()
		for kv, ok := iter(); ok; kv, ok = iter() {
			keys = append(keys, fmt.Sprint(kv.Key))
		}
		return writeObject(buf, keys, func(k string) interface{} {
			v, _ := x.Get(k)
			return v
		})
	default:
		return fmt.Errorf("unsupported payload value of type %T", v)
	}
	return nil
}

func writeObject(buf *bytes.Buffer, keys []string, get func(string) interface{}) error {
	sort.Strings(keys)
	buf.WriteString("{" + strconv.Itoa(len(keys)) + ":")
	for _, k := range keys {
		writeString(buf, k)
		if err := canonical(buf, get(k)); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteString("s" + strconv.Itoa(len(s)) + ":")
	buf.WriteString(s)
}

func writeNumber(buf *bytes.Buffer, r *big.Rat) {
	s := r.RatString()
	buf.WriteString("d" + strconv.Itoa(len(s)) + ":")
	buf.WriteString(s)
}
