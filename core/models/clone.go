package models

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/tiendc/go-deepcopy"
)

// CloneValue returns a deep copy of v.
//
// Scalars, time.Time and structs with unexported fields are values that
// cannot be shared by reference, so they are returned as is. Maps and slices
// decoded from JSON or YAML are copied element by element; anything else is
// copied with go-deepcopy.
func CloneValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, time.Time:
		return v, nil
	case map[string]any:
		return CloneValues(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			c, err := CloneValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	}

	t := reflect.TypeOf(v)
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return v, nil
	case reflect.Struct:
		if hasUnexported(t) {
			return v, nil
		}
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil, fmt.Errorf("cannot copy %s", t)
	}

	src := reflect.New(t)
	src.Elem().Set(reflect.ValueOf(v))
	dst := reflect.New(t)
	if err := deepcopy.Copy(dst.Interface(), src.Interface()); err != nil {
		return nil, fmt.Errorf("copy %s: %w", t, err)
	}
	return dst.Elem().Interface(), nil
}

// CloneValues deep copies every entry of values. On error the returned map
// holds every entry that could be copied.
func CloneValues(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var firstErr error
	for _, k := range keys {
		c, err := CloneValue(values[k])
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", k, err)
			}
			continue
		}
		out[k] = c
	}
	return out, firstErr
}

func hasUnexported(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			return true
		}
	}
	return false
}
