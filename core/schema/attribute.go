package schema

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Rule names with structural meaning.
const (
	KeyType     = "type"
	KeyRequired = "required"
	KeyIn       = "in"
	KeyEnum     = "enum"

	// Storage-only keys.
	KeyDefaultsTo    = "defaultsTo"
	KeyPrimaryKey    = "primaryKey"
	KeyAutoIncrement = "autoIncrement"
	KeyUnique        = "unique"
	KeyIndex         = "index"
	KeyColumnName    = "columnName"
)

// storageKeys are recognized and discarded before compilation.
var storageKeys = map[string]bool{
	KeyDefaultsTo:    true,
	KeyPrimaryKey:    true,
	KeyAutoIncrement: true,
	KeyUnique:        true,
	KeyIndex:         true,
	KeyColumnName:    true,
}

// IsStorageKey reports whether name is storage metadata rather than a rule.
func IsStorageKey(name string) bool {
	return storageKeys[name]
}

// Attribute is the rule set declared for one field, keyed by rule name.
type Attribute map[string]Rule

// Attributes maps field names to their declarations.
type Attributes map[string]Attribute

// Types maps custom type names to the static rules a value of that type must pass.
type Types map[string]Attribute

// Schema is the declarative description of a model.
type Schema struct {
	Attributes Attributes `yaml:"attributes" json:"attributes"`
	Types      Types      `yaml:"types,omitempty" json:"types,omitempty"`
}

// Shorthand returns the attribute a bare type string declares.
func Shorthand(typ string) Attribute {
	return Attribute{KeyType: Static(typ)}
}

// Type returns the declared static type, or "" when none is declared.
func (a Attribute) Type() string {
	r, ok := a[KeyType]
	if !ok || r.IsDynamic() {
		return ""
	}
	s, _ := r.Value.(string)
	return s
}

// Default returns the declared default value.
func (a Attribute) Default() (any, bool) {
	r, ok := a[KeyDefaultsTo]
	if !ok || r.IsDynamic() || r.Value == nil {
		return nil, false
	}
	return r.Value, true
}

// IsUnique reports whether the attribute is declared unique.
func (a Attribute) IsUnique() bool {
	return a.flag(KeyUnique) || a.flag(KeyPrimaryKey)
}

// IsPrimaryKey reports whether the attribute is the primary key.
func (a Attribute) IsPrimaryKey() bool {
	return a.flag(KeyPrimaryKey)
}

// Column returns the storage column for the attribute named field.
func (a Attribute) Column(field string) string {
	if r, ok := a[KeyColumnName]; ok && !r.IsDynamic() {
		if s, ok := r.Value.(string); ok && s != "" {
			return s
		}
	}
	return field
}

// RuleNames returns the declared rule names in sorted order.
func (a Attribute) RuleNames() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a Attribute) flag(name string) bool {
	r, ok := a[name]
	if !ok || r.IsDynamic() {
		return false
	}
	b, _ := r.Value.(bool)
	return b
}

// Names returns the attribute names in sorted order.
func (attrs Attributes) Names() []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defaults returns the declared default value of every attribute that has one.
// The returned values are shared with the schema and must be cloned before use.
func (attrs Attributes) Defaults() map[string]any {
	defaults := make(map[string]any)
	for name, attr := range attrs {
		if v, ok := attr.Default(); ok {
			defaults[name] = v
		}
	}
	return defaults
}

// UnmarshalYAML decodes either a bare type string or a mapping of rules.
func (a *Attribute) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var typ string
		if err := node.Decode(&typ); err != nil {
			return err
		}
		*a = Shorthand(typ)
		return nil

	case yaml.MappingNode:
		out := make(Attribute, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			name := node.Content[i].Value
			rule, err := decodeRule(node.Content[i+1])
			if err != nil {
				return fmt.Errorf("rule %q: %w", name, err)
			}
			out[name] = rule
		}
		*a = out
		return nil

	default:
		return fmt.Errorf("line %d: attribute must be a type name or a mapping of rules", node.Line)
	}
}

func decodeRule(node *yaml.Node) (Rule, error) {
	if node.Kind == yaml.MappingNode && len(node.Content) == 2 && node.Content[0].Value == "expr" {
		return CompileExpr(node.Content[1].Value)
	}

	var v any
	if err := node.Decode(&v); err != nil {
		return Rule{}, err
	}
	return Static(v), nil
}
