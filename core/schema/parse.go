package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/artpar/modelform/core/rules"
	"gopkg.in/yaml.v3"
)

// Document maps model names to their schemas.
type Document map[string]Schema

// Names returns the model names in sorted order.
func (d Document) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseFile parses a schema document from a YAML file.
func ParseFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse parses a schema document from YAML bytes.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}

	if err := Validate(doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// ParseDir parses all schema documents in a directory, including
// subdirectories, and merges them. A model declared twice is an error.
func ParseDir(dir string) (Document, error) {
	merged := Document{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		var doc Document
		if entry.IsDir() {
			doc, err = ParseDir(path)
		} else {
			name := entry.Name()
			if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
				continue
			}
			doc, err = ParseFile(path)
		}
		if err != nil {
			return nil, err
		}

		for model, s := range doc {
			if _, exists := merged[model]; exists {
				return nil, fmt.Errorf("model %q declared more than once in %s", model, dir)
			}
			merged[model] = s
		}
	}

	return merged, nil
}

// Load parses every path, which may be a file or a directory, and merges
// the documents. A model declared twice is an error.
func Load(paths ...string) (Document, error) {
	merged := Document{}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("load schemas: %w", err)
		}

		var doc Document
		if info.IsDir() {
			doc, err = ParseDir(path)
		} else {
			doc, err = ParseFile(path)
		}
		if err != nil {
			return nil, err
		}

		for model, s := range doc {
			if _, exists := merged[model]; exists {
				return nil, fmt.Errorf("model %q declared more than once (again in %s)", model, path)
			}
			merged[model] = s
		}
	}
	return merged, nil
}

// Validate checks every schema in a document.
func Validate(doc Document) error {
	var errs []string

	for _, model := range doc.Names() {
		if err := ValidateSchema(doc[model]); err != nil {
			errs = append(errs, fmt.Sprintf("model %q: %v", model, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateSchema checks that every rule and type a schema names is known.
func ValidateSchema(s Schema) error {
	var errs []string

	for _, name := range sortedKeys(s.Types) {
		if rules.IsType(name) {
			errs = append(errs, fmt.Sprintf("type %q shadows a built-in type", name))
		}
		for _, rule := range s.Types[name].RuleNames() {
			if !rules.Known(rule) {
				errs = append(errs, fmt.Sprintf("type %q: unknown rule %q", name, rule))
			}
			if s.Types[name][rule].IsDynamic() {
				errs = append(errs, fmt.Sprintf("type %q: rule %q must be static", name, rule))
			}
		}
	}

	for _, field := range s.Attributes.Names() {
		attr := s.Attributes[field]
		for _, rule := range attr.RuleNames() {
			if IsStorageKey(rule) || rule == KeyEnum {
				continue
			}
			if !rules.Known(rule) {
				errs = append(errs, fmt.Sprintf("field %q: unknown rule %q", field, rule))
			}
		}

		if typ := attr.Type(); typ != "" && !rules.IsType(typ) {
			if _, ok := s.Types[typ]; !ok {
				errs = append(errs, fmt.Sprintf("field %q: unknown type %q", field, typ))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func sortedKeys(t Types) []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
