// Package form defines the host form capabilities the controller binds to,
// and an in-memory implementation used by the HTTP host and in tests.
package form

// Parser transforms a field's view value on its way to the model.
type Parser func(value any) any

// Field is a bound form control.
type Field interface {
	// Name returns the attribute name the field is bound to.
	Name() string

	// AddParser appends p to the field's value-parsing pipeline.
	AddParser(p Parser)

	// SetValidity marks a named rule valid or invalid on the field.
	SetValidity(rule string, valid bool)

	// ViewValue returns the currently displayed value.
	ViewValue() any

	// IsEmpty reports whether a display value counts as empty.
	IsEmpty(value any) bool
}

// Form is a set of bound fields.
//
// Implementations should be pointer types. Forms are tracked by identity, and
// a non-comparable struct value has none: errors mapped onto it cannot be
// cleared later.
type Form interface {
	// Fields returns the bound fields in registration order.
	Fields() []Field

	// Field returns the field bound to name.
	Field(name string) (Field, bool)

	// OnFieldAdded registers fn to run for every field added after the call.
	OnFieldAdded(fn func(Field))

	// SetPristine clears touched and dirty state.
	SetPristine()

	// Valid reports whether every field is valid.
	Valid() bool
}
