package flatten

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind tags the type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	}
	return "unknown"
}

// Value is a scalar found at a flattened key.
// Numbers are held as json.Number or float64, booleans as bool and strings as string.
type Value struct {
	Kind Kind
	V    interface{}
}

// NewValue tags a scalar. Anything that isn't null, bool or a number is stored as its string form.
func NewValue(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Value{Kind: KindNull}
	case bool:
		return Value{Kind: KindBool, V: x}
	case json.Number:
		return Value{Kind: KindNumber, V: x}
	case float64:
		return Value{Kind: KindNumber, V: x}
	case float32:
		return Value{Kind: KindNumber, V: float64(x)}
	case int:
		return Value{Kind: KindNumber, V: json.Number(strconv.Itoa(x))}
	case int32:
		return Value{Kind: KindNumber, V: json.Number(strconv.FormatInt(int64(x), 10))}
	case int64:
		return Value{Kind: KindNumber, V: json.Number(strconv.FormatInt(x, 10))}
	case uint64:
		return Value{Kind: KindNumber, V: json.Number(strconv.FormatUint(x, 10))}
	case string:
		return Value{Kind: KindString, V: x}
	}
	return Value{Kind: KindString, V: fmt.Sprint(v)}
}

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// String renders v for text output; null is the empty string and numbers never use exponents.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.V.(bool))
	case KindNumber:
		return formatNumber(v.V)
	}
	return fmt.Sprint(v.V)
}

// Float returns the numeric value of v, or false if v isn't a number.
func (v Value) Float() (float64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	switch x := v.V.(type) {
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// Interface returns the raw scalar.
func (v Value) Interface() interface{} {
	return v.V
}

// MarshalJSON writes the scalar itself rather than the tagged struct.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindNull {
		return []byte("null"), nil
	}
	return json.Marshal(v.V)
}

func formatNumber(n interface{}) string {
	switch x := n.(type) {
	case json.Number:
		s := x.String()
		if f, err := x.Float64(); err == nil && hasExponent(s) {
			return formatFloat(f)
		}
		return s
	case float64:
		return formatFloat(x)
	}
	return fmt.Sprint(n)
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func hasExponent(s string) bool {
	for _, c := range s {
		if c == 'e' || c == 'E' {
			return true
		}
	}
	return false
}
