// Package models binds named resources to their attribute schemas.
//
// A Registry maps a model name to a Resource and a schema. The first Get for
// a resource compiles its validators; every later Get, under any name,
// reuses them. Instances are created with deep copies of the schema defaults.
package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/modelform/core/schema"
	"github.com/artpar/modelform/core/validation"
)

var (
	// ErrUnknownModel is returned for a name no resource was added under.
	ErrUnknownModel = errors.New("unknown model")

	// ErrUnknownAction is returned when a resource has no such action.
	ErrUnknownAction = errors.New("unknown action")
)

// ConfigError reports a resource that declares attributes but has no schema.
type ConfigError struct {
	Name string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("no schema registered for name %s", e.Name)
}

// Options are passed through to an action.
type Options map[string]any

// ActionFunc performs a named operation on an instance.
type ActionFunc func(ctx context.Context, inst *Instance, opts Options) (any, error)

// Resource is the backing implementation of a model. Resources are compared
// by pointer identity.
type Resource struct {
	// Actions maps action names such as "save" and "destroy" to their implementation.
	Actions map[string]ActionFunc

	// Schemaless marks a resource without attributes. Such a resource needs
	// no registered schema.
	Schemaless bool
}

// Registry maps model names to resources and schemas.
type Registry struct {
	mu sync.RWMutex

	resources map[string]*Resource
	schemas   map[string]schema.Schema

	// compiled validators keyed by resource identity
	compiled     map[*Resource]validation.Validators
	compilations int

	options []validation.Option
	logger  zerolog.Logger
}

// New creates an empty registry. opts are applied to every compilation.
func New(logger zerolog.Logger, opts ...validation.Option) *Registry {
	return &Registry{
		resources: make(map[string]*Resource),
		schemas:   make(map[string]schema.Schema),
		compiled:  make(map[*Resource]validation.Validators),
		options:   opts,
		logger:    logger,
	}
}

// Add registers res under name. A later Add for the same name replaces it.
func (r *Registry) Add(name string, res *Resource) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[name]; exists {
		r.logger.Debug().Str("model", name).Msg("replacing registered resource")
	}
	r.resources[name] = res
	return r
}

// Schemas merges schemas into the registry. Later entries replace earlier
// ones per name.
func (r *Registry) Schemas(schemas map[string]schema.Schema) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, s := range schemas {
		r.schemas[name] = s
	}
	return r
}

// Schema returns the schema registered under name.
func (r *Registry) Schema(name string) (schema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// Names returns the names of all added resources in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compilations returns how many times validators were compiled.
func (r *Registry) Compilations() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.compilations
}

// Get returns the model registered under name, compiling its validators on
// first access.
func (r *Registry) Get(name string) (*Model, error) {
	r.mu.RLock()
	res, ok := r.resources[name]
	s, hasSchema := r.schemas[name]
	validators, compiled := r.compiled[res]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	if !hasSchema && !res.Schemaless {
		return nil, &ConfigError{Name: name}
	}

	if !compiled {
		validators = r.compile(name, res, s)
	}

	return &Model{
		Name:       name,
		Resource:   res,
		Schema:     s,
		Validators: validators,
		logger:     r.logger,
	}, nil
}

// MustGet is like Get but panics on error.
func (r *Registry) MustGet(name string) *Model {
	m, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return m
}

func (r *Registry) compile(name string, res *Resource, s schema.Schema) validation.Validators {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have compiled while the lock was released.
	if validators, ok := r.compiled[res]; ok {
		return validators
	}

	validators := validation.Compile(s.Attributes, s.Types, r.options...)
	r.compiled[res] = validators
	r.compilations++

	r.logger.Debug().
		Str("model", name).
		Int("fields", len(validators)).
		Msg("validators compiled")
	return validators
}

// Model is a resolved model: its resource, schema and shared validators.
type Model struct {
	Name       string
	Resource   *Resource
	Schema     schema.Schema
	Validators validation.Validators

	logger zerolog.Logger
}

// New creates an instance populated with deep copies of the schema defaults,
// then values. Values win over defaults.
func (m *Model) New(values map[string]any) *Instance {
	defaults := m.Schema.Attributes.Defaults()

	data := make(map[string]any, len(defaults)+len(values))
	for k, v := range defaults {
		c, err := CloneValue(v)
		if err != nil {
			// Keep the shared default rather than lose it.
			m.logger.Warn().Err(err).Str("model", m.Name).Str("field", k).Msg("default not copied")
			c = v
		}
		data[k] = c
	}
	for k, v := range values {
		data[k] = v
	}

	return &Instance{model: m, values: data}
}

// Instance is one live model value set. It implements schema.Context.
type Instance struct {
	mu     sync.RWMutex
	model  *Model
	values map[string]any
}

// Model returns the model the instance was created from.
func (i *Instance) Model() *Model {
	return i.model
}

// Get returns the value of one attribute.
func (i *Instance) Get(name string) (any, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.values[name]
	return v, ok
}

// Set assigns one attribute.
func (i *Instance) Set(name string, value any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.values[name] = value
}

// Unset removes one attribute.
func (i *Instance) Unset(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.values, name)
}

// Merge assigns every entry of values.
func (i *Instance) Merge(values map[string]any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for k, v := range values {
		i.values[k] = v
	}
}

// Values returns a shallow copy of the attribute values.
func (i *Instance) Values() map[string]any {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make(map[string]any, len(i.values))
	for k, v := range i.values {
		out[k] = v
	}
	return out
}

// Do runs the named resource action on the instance.
func (i *Instance) Do(ctx context.Context, action string, opts Options) (any, error) {
	fn, ok := i.model.Resource.Actions[action]
	if !ok || fn == nil {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownAction, action, i.model.Name)
	}
	return fn(ctx, i, opts)
}

var _ schema.Context = (*Instance)(nil)
