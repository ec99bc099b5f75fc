package rules

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// formats checks string formats. validator.Validate is safe for concurrent use.
var formats = validator.New()

// TypeCheck reports whether a value belongs to a type.
type TypeCheck func(value any) bool

var types = map[string]TypeCheck{
	"string":   isString,
	"text":     isString,
	"integer":  isInteger,
	"int":      isInteger,
	"number":   isNumber,
	"float":    isNumber,
	"decimal":  isNumber,
	"boolean":  isBoolean,
	"date":     isDate,
	"datetime": isDate,
	"array":    isArray,
	"json":     isJSON,

	"email":        format("email"),
	"url":          format("url"),
	"uuid":         format("uuid"),
	"alpha":        format("alpha"),
	"alphanumeric": format("alphanum"),
	"numeric":      format("numeric"),
	"hexadecimal":  format("hexadecimal"),
	"hexColor":     format("hexcolor"),
	"ip":           format("ip"),
	"ipv4":         format("ipv4"),
	"ipv6":         format("ipv6"),
	"lowercase":    format("lowercase"),
	"uppercase":    format("uppercase"),
}

// IsType reports whether name is a built-in type.
func IsType(name string) bool {
	_, ok := types[name]
	return ok
}

// TypeNames returns the built-in type names in sorted order.
func TypeNames() []string {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckType reports whether value is of the named built-in type.
// Unknown type names pass; schema validation rejects them earlier.
func CheckType(name string, value any) bool {
	check, ok := types[name]
	if !ok {
		return true
	}
	return check(value)
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return n == math.Trunc(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n) == math.Trunc(float64(n))
	case string:
		_, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return err == nil
	}
	return false
}

func isNumber(v any) bool {
	f, ok := ToFloat(v)
	return ok && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// isBoolean accepts booleans and their string forms, since form inputs
// deliver checkbox values as text.
func isBoolean(v any) bool {
	switch b := v.(type) {
	case bool:
		return true
	case string:
		return b == "true" || b == "false"
	}
	return false
}

func isDate(v any) bool {
	_, ok := ToTime(v)
	return ok
}

func isArray(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func isJSON(v any) bool {
	if s, ok := v.(string); ok {
		return json.Valid([]byte(s))
	}
	_, err := json.Marshal(v)
	return err == nil
}

func format(tag string) TypeCheck {
	return func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		return formats.Var(s, tag) == nil
	}
}
