// Package validation compiles schema rule sets into per-field validators.
//
// A compiled Validator never rejects or rewrites a value. It reports the
// outcome of every rule through a Reporter and returns the value unchanged,
// leaving it to the host form to surface the per-rule validity.
package validation

import (
	"fmt"
	"sort"

	"github.com/artpar/modelform/core/rules"
	"github.com/artpar/modelform/core/schema"
)

// Reporter receives the validity of one rule on a field.
type Reporter func(rule string, valid bool)

// Validator validates the values of one field.
type Validator struct {
	// Field is the attribute name the validator was compiled for.
	Field string

	// Required reports a statically required field, so callers can flag an
	// untouched empty field before the first edit.
	Required bool

	rules schema.Attribute
	names []string
	types schema.Types
	table rules.Table
}

// Validators maps field names to their compiled validators.
type Validators map[string]*Validator

// Names returns the field names in sorted order.
func (vs Validators) Names() []string {
	names := make([]string, 0, len(vs))
	for name := range vs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Option configures compilation.
type Option func(*compiler)

type compiler struct {
	table rules.Table
}

// WithTable compiles against a custom rule table instead of rules.Default().
func WithTable(t rules.Table) Option {
	return func(c *compiler) {
		c.table = t
	}
}

// Compile builds one validator per attribute. The attributes are normalized
// first, so storage metadata never reaches the rule table.
// Rules missing from the table are ignored.
func Compile(attrs schema.Attributes, types schema.Types, opts ...Option) Validators {
	c := compiler{table: rules.Default()}
	for _, opt := range opts {
		opt(&c)
	}

	normalized := schema.Normalize(attrs)
	out := make(Validators, len(normalized))
	for field, attr := range normalized {
		names := make([]string, 0, len(attr))
		for _, name := range attr.RuleNames() {
			if _, ok := c.table.Lookup(name); ok {
				names = append(names, name)
			}
		}

		out[field] = &Validator{
			Field:    field,
			Required: staticRequired(attr),
			rules:    attr,
			names:    names,
			types:    types,
			table:    c.table,
		}
	}
	return out
}

// Rules returns the names of the rules this validator evaluates.
func (v *Validator) Rules() []string {
	return append([]string(nil), v.names...)
}

// Validate evaluates value against the field's rules and reports every rule
// outcome. Dynamic rules are resolved against ctx on each call.
// The returned value is always the input value.
func (v *Validator) Validate(value any, ctx schema.Context, report Reporter) any {
	if report == nil {
		report = func(string, bool) {}
	}

	required := rules.Truthy(v.resolve(schema.KeyRequired, ctx))

	// Absent optional values are only subject to required-ness.
	if !required && (value == nil || value == "") {
		v.resetAll(report)
		return value
	}

	// Boolean fields often arrive from inputs as "true"/"false".
	if required && v.isBoolean() {
		if s := fmt.Sprint(value); s == "true" || s == "false" {
			v.resetAll(report)
			return value
		}
	}

	resolved := make(map[string]any, len(v.names))
	for _, name := range v.names {
		resolved[name] = v.resolve(name, ctx)
	}

	for _, name := range v.names {
		report(name, true)
		if !v.check(name, value, resolved[name]) {
			report(name, false)
		}
	}

	return value
}

// Check validates value and returns the validity of each rule.
func (v *Validator) Check(value any, ctx schema.Context) map[string]bool {
	result := make(map[string]bool, len(v.names))
	v.Validate(value, ctx, func(rule string, valid bool) {
		result[rule] = valid
	})
	return result
}

func (v *Validator) resolve(name string, ctx schema.Context) any {
	r, ok := v.rules[name]
	if !ok {
		return nil
	}
	return r.Resolve(ctx)
}

func (v *Validator) check(name string, value, param any) bool {
	if param == nil {
		return true
	}

	if name == schema.KeyType {
		if typ, ok := param.(string); ok {
			if custom, ok := v.types[typ]; ok {
				return v.checkCustomType(custom, value)
			}
		}
	}

	fn, ok := v.table.Lookup(name)
	if !ok {
		return true
	}
	return fn(value, param)
}

// checkCustomType passes when value satisfies every rule of a custom type.
func (v *Validator) checkCustomType(custom schema.Attribute, value any) bool {
	for _, name := range custom.RuleNames() {
		fn, ok := v.table.Lookup(name)
		if !ok {
			continue
		}
		param := custom[name].Value
		if param == nil {
			continue
		}
		if !fn(value, param) {
			return false
		}
	}
	return true
}

func (v *Validator) isBoolean() bool {
	return v.rules.Type() == "boolean"
}

func (v *Validator) resetAll(report Reporter) {
	for _, name := range v.names {
		report(name, true)
	}
}

func staticRequired(attr schema.Attribute) bool {
	r, ok := attr[schema.KeyRequired]
	if !ok || r.IsDynamic() {
		return false
	}
	return rules.Truthy(r.Value)
}
