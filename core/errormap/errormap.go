// Package errormap translates action errors into per-field validity on a form.
//
// Resources report field-level failures by returning a FieldError or an
// Errors list, possibly wrapped. Failure marks each named rule invalid on the
// matching field; the next Success or Failure for the same form and action
// restores the rules it marked before.
package errormap

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/modelform/core/form"
)

// RuleServer is used when a FieldError names no rule.
const RuleServer = "server"

// FieldError is a server-side failure attributed to one field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message,omitempty"`
}

func (e FieldError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Field, e.rule(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.rule())
}

func (e FieldError) rule() string {
	if e.Rule == "" {
		return RuleServer
	}
	return e.Rule
}

// Errors is a list of field errors returned together.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var b strings.Builder
	b.WriteString("field errors:")
	for _, fe := range e {
		b.WriteString("\n  - ")
		b.WriteString(fe.Error())
	}
	return b.String()
}

// Extract returns the field errors carried by err, if any.
func Extract(err error) []FieldError {
	var list Errors
	if errors.As(err, &list) {
		return list
	}
	var fe FieldError
	if errors.As(err, &fe) {
		return []FieldError{fe}
	}
	var pfe *FieldError
	if errors.As(err, &pfe) && pfe != nil {
		return []FieldError{*pfe}
	}
	return nil
}

type key struct {
	form   any // see formID
	action string
}

// refID identifies a form of a map, slice or func type by its header.
type refID struct {
	t reflect.Type
	p uintptr
}

// formID returns a comparable identity for f. Struct values that cannot be
// compared have none.
func formID(f form.Form) (any, bool) {
	t := reflect.TypeOf(f)
	if t == nil {
		return nil, false
	}
	if t.Comparable() {
		return f, true
	}
	switch t.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func:
		return refID{t: t, p: reflect.ValueOf(f).Pointer()}, true
	}
	return nil, false
}

type mark struct {
	field string
	rule  string
}

// Mapper records which rules it marked invalid per form and action.
// Forms whose dynamic type is a non-comparable struct value still get their
// fields marked, but the marks are not recorded and so never cleared.
type Mapper struct {
	mu     sync.Mutex
	marked map[key][]mark
	logger zerolog.Logger
}

// NewMapper creates an error mapper.
func NewMapper(logger zerolog.Logger) *Mapper {
	return &Mapper{
		marked: make(map[key][]mark),
		logger: logger,
	}
}

// Success returns a handler that clears the errors previously mapped for
// action on f and passes the result through.
func (m *Mapper) Success(f form.Form, action string) func(any) any {
	return func(result any) any {
		m.clear(f, action)
		return result
	}
}

// Failure returns a handler that marks every field error carried by err
// invalid on f and returns err unchanged.
func (m *Mapper) Failure(f form.Form, action string) func(error) error {
	return func(err error) error {
		m.clear(f, action)
		if err == nil {
			return nil
		}

		var marks []mark
		for _, fe := range Extract(err) {
			field, ok := f.Field(fe.Field)
			if !ok {
				m.logger.Debug().
					Str("action", action).
					Str("field", fe.Field).
					Msg("error for unbound field")
				continue
			}
			field.SetValidity(fe.rule(), false)
			marks = append(marks, mark{field: fe.Field, rule: fe.rule()})
		}

		if len(marks) == 0 {
			return err
		}
		id, ok := formID(f)
		if !ok {
			m.logger.Warn().
				Str("action", action).
				Str("form", fmt.Sprintf("%T", f)).
				Msg("form is not comparable, mapped errors will not be cleared")
			return err
		}
		m.mu.Lock()
		m.marked[key{form: id, action: action}] = marks
		m.mu.Unlock()
		return err
	}
}

// Mapped returns the field/rule pairs currently marked for action on f,
// formatted as "field.rule".
func (m *Mapper) Mapped(f form.Form, action string) []string {
	id, ok := formID(f)
	if !ok {
		return []string{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	marks := m.marked[key{form: id, action: action}]
	out := make([]string, len(marks))
	for i, mk := range marks {
		out[i] = mk.field + "." + mk.rule
	}
	return out
}

// Forget drops everything recorded for f.
func (m *Mapper) Forget(f form.Form) {
	id, ok := formID(f)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.marked {
		if k.form == id {
			delete(m.marked, k)
		}
	}
}

// Len returns the number of form and action pairs with recorded marks.
func (m *Mapper) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.marked)
}

func (m *Mapper) clear(f form.Form, action string) {
	id, ok := formID(f)
	if !ok {
		return
	}
	k := key{form: id, action: action}

	m.mu.Lock()
	marks := m.marked[k]
	delete(m.marked, k)
	m.mu.Unlock()

	for _, mk := range marks {
		if field, ok := f.Field(mk.field); ok {
			field.SetValidity(mk.rule, true)
		}
	}
}
