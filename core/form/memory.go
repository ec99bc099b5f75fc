package form

import (
	"slices"
	"sort"
	"sync"

	"github.com/artpar/modelform/core/rules"
)

// Control is an in-memory Field.
type Control struct {
	mu       sync.RWMutex
	name     string
	view     any
	value    any
	parsers  []Parser
	validity map[string]bool
	dirty    bool
	touched  bool
}

// NewControl creates a control with an initial view value.
func NewControl(name string, view any) *Control {
	return &Control{
		name:     name,
		view:     view,
		value:    view,
		validity: make(map[string]bool),
	}
}

// Name returns the bound attribute name.
func (c *Control) Name() string {
	return c.name
}

// AddParser appends p to the parsing pipeline.
func (c *Control) AddParser(p Parser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parsers = append(c.parsers, p)
}

// SetValidity records the validity of a rule.
func (c *Control) SetValidity(rule string, valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validity[rule] = valid
}

// ViewValue returns the displayed value.
func (c *Control) ViewValue() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// IsEmpty reports nil, "" and empty collections as empty.
func (c *Control) IsEmpty(value any) bool {
	return rules.IsEmpty(value)
}

// SetViewValue simulates a user edit: it runs the parser pipeline and stores
// the parsed model value. The control becomes dirty and touched.
func (c *Control) SetViewValue(view any) any {
	c.mu.Lock()
	c.view = view
	c.dirty = true
	c.touched = true
	parsers := append([]Parser(nil), c.parsers...)
	c.mu.Unlock()

	// Parsers may report validity, which takes the lock.
	value := view
	for _, p := range parsers {
		value = p(value)
	}

	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
	return value
}

// Value returns the parsed model value.
func (c *Control) Value() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Validity returns a copy of the rule validity map.
func (c *Control) Validity() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bool, len(c.validity))
	for k, v := range c.validity {
		out[k] = v
	}
	return out
}

// Valid reports whether no rule is invalid.
func (c *Control) Valid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, v := range c.validity {
		if !v {
			return false
		}
	}
	return true
}

// Errors returns the invalid rule names in sorted order.
func (c *Control) Errors() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var errs []string
	for rule, valid := range c.validity {
		if !valid {
			errs = append(errs, rule)
		}
	}
	sort.Strings(errs)
	return errs
}

// Dirty reports whether the control was edited since the last reset.
func (c *Control) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// Touched reports whether the control was interacted with since the last reset.
func (c *Control) Touched() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.touched
}

func (c *Control) setPristine() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = false
	c.touched = false
}

// Set is an in-memory Form.
type Set struct {
	mu       sync.RWMutex
	controls []*Control
	byName   map[string]*Control
	hooks    []func(Field)
}

// NewSet creates a form holding the given controls in order.
func NewSet(controls ...*Control) *Set {
	s := &Set{byName: make(map[string]*Control)}
	for _, c := range controls {
		s.controls = append(s.controls, c)
		s.byName[c.name] = c
	}
	return s
}

// FromValues creates a form with one control per value, in sorted name order.
func FromValues(values map[string]any) *Set {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	s := NewSet()
	for _, name := range names {
		s.Add(NewControl(name, values[name]))
	}
	return s
}

// Add registers a control and runs the field-added hooks.
// A control with an already bound name replaces it.
func (s *Set) Add(c *Control) {
	s.mu.Lock()
	if old, ok := s.byName[c.name]; ok {
		for i, existing := range s.controls {
			if existing == old {
				s.controls = append(s.controls[:i], s.controls[i+1:]...)
				break
			}
		}
	}
	s.controls = append(s.controls, c)
	s.byName[c.name] = c
	hooks := slices.Clone(s.hooks)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(c)
	}
}

// Fields returns the controls in registration order.
func (s *Set) Fields() []Field {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Field, len(s.controls))
	for i, c := range s.controls {
		out[i] = c
	}
	return out
}

// Field returns the control bound to name.
func (s *Set) Field(name string) (Field, bool) {
	c, ok := s.Control(name)
	if !ok {
		return nil, false
	}
	return c, true
}

// Control returns the concrete control bound to name.
func (s *Set) Control(name string) (*Control, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byName[name]
	return c, ok
}

// OnFieldAdded registers fn for controls added later.
func (s *Set) OnFieldAdded(fn func(Field)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// SetPristine clears dirty and touched state on the form and its controls.
func (s *Set) SetPristine() {
	s.mu.RLock()
	controls := append([]*Control(nil), s.controls...)
	s.mu.RUnlock()

	for _, c := range controls {
		c.setPristine()
	}
}

// Dirty reports whether any control was edited since the last reset.
func (s *Set) Dirty() bool {
	for _, f := range s.Fields() {
		if f.(*Control).Dirty() {
			return true
		}
	}
	return false
}

// Valid reports whether every control is valid.
func (s *Set) Valid() bool {
	for _, f := range s.Fields() {
		if !f.(*Control).Valid() {
			return false
		}
	}
	return true
}

// Errors maps each invalid control to its invalid rules.
func (s *Set) Errors() map[string][]string {
	out := make(map[string][]string)
	for _, f := range s.Fields() {
		c := f.(*Control)
		if errs := c.Errors(); len(errs) > 0 {
			out[c.name] = errs
		}
	}
	return out
}

// Values returns the parsed value of every control.
func (s *Set) Values() map[string]any {
	out := make(map[string]any)
	for _, f := range s.Fields() {
		c := f.(*Control)
		out[c.name] = c.Value()
	}
	return out
}

var (
	_ Field = (*Control)(nil)
	_ Form  = (*Set)(nil)
)
