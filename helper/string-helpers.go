package helper

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
)

var reNonIdentifierChars = regexp.MustCompile(`[^_a-zA-Z0-9]`)

// CsvStringOfTokensToMap expects a CSV of tokens
// "testA:testB, xyz1:abc2, ""j kh3: r st4"", ""j kh3:xyz""
// and returns:
// m[testA]=testB
// m[xyz1]=abc2
// m["j kh3"]=xyz
// It will take the last seen value for a given token.
func CsvStringOfTokensToMap(log logger.Logger, s string) (map[string]string, error) {
	r := csv.NewReader(strings.NewReader(s))
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range records { // for each CSV line...
		for _, v := range line { // for each value component on the line...
			k, val := Split(v, ":") // use the left hand side as the key and the remainder as the value.
			if strings.TrimSpace(k) == "" {
				continue
			}
			m[strings.TrimSpace(k)] = strings.TrimSpace(val)
		}
	}
	log.Debug("CsvStringOfTokensToMap() returning ", len(m), " tokens")
	return m, nil
}

// CsvToStringSliceTrimSpaces converts a string of the form 'f1,f2,f3...' into a slice of string values.
// Empty input results in an empty slice.
func CsvToStringSliceTrimSpaces(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	tokens := strings.Split(s, ",")
	for x := range tokens {
		tokens[x] = strings.TrimSpace(tokens[x])
	}
	return tokens
}

// SanitizeName removes characters other than letters, digits and underscore and converts to lower case.
func SanitizeName(s string) string {
	return strings.ToLower(reNonIdentifierChars.ReplaceAllString(s, ""))
}

// GetStringFromInterfaceUseUtcTime converts interface{} value to a string with times in UTC.
func GetStringFromInterfaceUseUtcTime(log logger.Logger, input interface{}) string {
	return GetStringFromInterface(log, input, true)
}

// GetStringFromInterfacePreserveTimeZone converts interface{} value to a string with times in local time.
func GetStringFromInterfacePreserveTimeZone(log logger.Logger, input interface{}) string {
	return GetStringFromInterface(log, input, false)
}

// GetStringFromInterface will convert interface{} value to a string.
// Optionally return Times in UTC.
func GetStringFromInterface(log logger.Logger, input interface{}, useUTC bool) (retval string) {
	switch v := input.(type) {
	case int, int16, int32, int64, int8, uint, uint16, uint32, uint64, uint8:
		retval = fmt.Sprintf("%d", v)
	case string:
		retval = v
	case float32:
		retval = strconv.FormatFloat(float64(v), 'f', -1, 32) // use 'f' to convert float to string without an exponent.
	case float64:
		retval = strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		retval = v.String()
	case time.Time:
		if useUTC { // if caller requests UTC conversion...
			retval = v.UTC().Format(constants.TimeFormatYearSecondsTZ)
		} else {
			retval = v.Format(constants.TimeFormatYearSecondsTZ)
		}
	case []uint8:
		retval = string(v)
	case bool:
		retval = strconv.FormatBool(v)
	case nil:
		retval = ""
	default:
		log.Panic("unhandled type while fetching string from interface: type = ", reflect.TypeOf(input), "; value = ", input)
	}
	return
}

// Split returns t, u if s is of the form t c u, else s, "".
func Split(s string, c string) (string, string) {
	i := strings.Index(s, c)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+len(c):]
}

// GetTrueFalseStringAsBool trims spaces from s and checks if it can regexp (case insensitive) match "true".
func GetTrueFalseStringAsBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}
