// Package rules provides the named rule evaluators schemas refer to.
// Every evaluator is a PURE function of the value and the rule parameter.
package rules

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Func reports whether value satisfies a rule parameterised by param.
type Func func(value, param any) bool

// Table maps rule names to evaluators.
type Table map[string]Func

// Rule names.
const (
	Type        = "type"
	Required    = "required"
	NotEmpty    = "notEmpty"
	In          = "in"
	NotIn       = "notIn"
	Min         = "min"
	Max         = "max"
	GreaterThan = "greaterThan"
	LessThan    = "lessThan"
	MinLength   = "minLength"
	MaxLength   = "maxLength"
	Len         = "len"
	Regex       = "regex"
	NotRegex    = "notRegex"
	Equals      = "equals"
	Contains    = "contains"
	NotContains = "notContains"
	After       = "after"
	Before      = "before"
)

var builtin = Table{
	Type:        checkType,
	Required:    checkRequired,
	NotEmpty:    checkNotEmpty,
	In:          checkIn,
	NotIn:       func(v, p any) bool { return !checkIn(v, p) },
	Min:         compareNumber(func(v, p float64) bool { return v >= p }),
	Max:         compareNumber(func(v, p float64) bool { return v <= p }),
	GreaterThan: compareNumber(func(v, p float64) bool { return v > p }),
	LessThan:    compareNumber(func(v, p float64) bool { return v < p }),
	MinLength:   compareLength(func(n, p int) bool { return n >= p }),
	MaxLength:   compareLength(func(n, p int) bool { return n <= p }),
	Len:         compareLength(func(n, p int) bool { return n == p }),
	Regex:       checkRegex,
	NotRegex:    func(v, p any) bool { return !checkRegex(v, p) },
	Equals:      func(v, p any) bool { return fmt.Sprint(v) == fmt.Sprint(p) },
	Contains:    checkContains,
	NotContains: func(v, p any) bool { return !checkContains(v, p) },
	After:       compareTime(func(v, p time.Time) bool { return v.After(p) }),
	Before:      compareTime(func(v, p time.Time) bool { return v.Before(p) }),
}

func init() {
	// A type name used as a rule, e.g. email: true, checks that type.
	for name := range types {
		if _, taken := builtin[name]; taken {
			continue
		}
		builtin[name] = typeFlag(name)
	}
}

// Default returns a copy of the built-in rule table.
func Default() Table {
	t := make(Table, len(builtin))
	for name, fn := range builtin {
		t[name] = fn
	}
	return t
}

// With returns a copy of the table with fn registered under name.
func (t Table) With(name string, fn Func) Table {
	out := make(Table, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	out[name] = fn
	return out
}

// Lookup returns the evaluator registered under name.
func (t Table) Lookup(name string) (Func, bool) {
	fn, ok := t[name]
	return fn, ok
}

// Names returns the registered rule names in sorted order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is a built-in rule.
func Known(name string) bool {
	_, ok := builtin[name]
	return ok
}

// IsEmpty reports whether a value counts as absent: nil, "", or an empty
// slice or map.
func IsEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Truthy reports whether a resolved rule parameter enables a flag rule.
func Truthy(param any) bool {
	switch p := param.(type) {
	case nil:
		return false
	case bool:
		return p
	case string:
		b, err := strconv.ParseBool(p)
		return err == nil && b
	default:
		f, ok := ToFloat(p)
		return ok && f != 0
	}
}

func checkRequired(value, param any) bool {
	if !Truthy(param) {
		return true
	}
	return !IsEmpty(value)
}

func checkNotEmpty(value, param any) bool {
	if !Truthy(param) {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return !IsEmpty(value)
}

func checkType(value, param any) bool {
	name, ok := param.(string)
	if !ok {
		return true
	}
	return CheckType(name, value)
}

func typeFlag(name string) Func {
	return func(value, param any) bool {
		if !Truthy(param) {
			return true
		}
		return CheckType(name, value)
	}
}

func checkIn(value, param any) bool {
	allowed, ok := toSlice(param)
	if !ok {
		return true
	}
	if values, ok := toSlice(value); ok {
		for _, v := range values {
			if !member(v, allowed) {
				return false
			}
		}
		return true
	}
	return member(value, allowed)
}

func member(value any, allowed []any) bool {
	s := fmt.Sprint(value)
	for _, a := range allowed {
		if fmt.Sprint(a) == s {
			return true
		}
	}
	return false
}

func compareNumber(cmp func(v, p float64) bool) Func {
	return func(value, param any) bool {
		p, ok := ToFloat(param)
		if !ok {
			return true
		}
		v, ok := ToFloat(value)
		if !ok {
			return false
		}
		return cmp(v, p)
	}
}

func compareLength(cmp func(n, p int) bool) Func {
	return func(value, param any) bool {
		pf, ok := ToFloat(param)
		if !ok {
			return true
		}
		n, ok := length(value)
		if !ok {
			return false
		}
		return cmp(n, int(pf))
	}
}

func compareTime(cmp func(v, p time.Time) bool) Func {
	return func(value, param any) bool {
		p, ok := ToTime(param)
		if !ok {
			return true
		}
		v, ok := ToTime(value)
		if !ok {
			return false
		}
		return cmp(v, p)
	}
}

func checkRegex(value, param any) bool {
	pattern, ok := param.(string)
	if !ok {
		return true
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return true // Invalid pattern, skip
	}
	return re.MatchString(fmt.Sprint(value))
}

func checkContains(value, param any) bool {
	if param == nil {
		return true
	}
	if values, ok := toSlice(value); ok {
		return member(param, values)
	}
	return strings.Contains(fmt.Sprint(value), fmt.Sprint(param))
}

var patterns sync.Map // string -> *regexp.Regexp

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patterns.Store(pattern, re)
	return re, nil
}

func length(value any) (int, bool) {
	if s, ok := value.(string); ok {
		return utf8.RuneCountInString(s), true
	}
	if value == nil {
		return 0, false
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	}
	return utf8.RuneCountInString(fmt.Sprint(value)), true
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// ToFloat converts numeric values and numeric strings to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ToTime converts time values and date strings to time.Time.
func ToTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
