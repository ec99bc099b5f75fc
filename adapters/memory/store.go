// Package memory provides an in-memory record store for models that do not
// need persistence.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/artpar/modelform/core/errormap"
	"github.com/artpar/modelform/core/models"
	"github.com/artpar/modelform/core/schema"
)

// Action names provided by a store resource.
const (
	ActionSave    = "save"
	ActionDestroy = "destroy"
	ActionFetch   = "fetch"
)

// IDField is the attribute holding the record ID.
const IDField = "id"

// ErrNotFound is returned when an entity is not found.
var ErrNotFound = errors.New("not found")

// Store holds records of one model keyed by ID.
type Store struct {
	mu      sync.RWMutex
	records map[string]map[string]any
	unique  map[string]map[string]string // field -> value -> ID
}

// NewStore creates a store enforcing uniqueness of the schema's unique
// attributes.
func NewStore(s schema.Schema) *Store {
	st := &Store{
		records: make(map[string]map[string]any),
		unique:  make(map[string]map[string]string),
	}
	for name, attr := range s.Attributes {
		if name != IDField && attr.IsUnique() {
			st.unique[name] = make(map[string]string)
		}
	}
	return st
}

// Resource returns a resource with save, destroy and fetch actions backed
// by a new store for s.
func Resource(s schema.Schema) *models.Resource {
	return NewStore(s).Resource()
}

// Resource exposes the store's actions.
func (s *Store) Resource() *models.Resource {
	return &models.Resource{
		Actions: map[string]models.ActionFunc{
			ActionSave:    s.save,
			ActionDestroy: s.destroy,
			ActionFetch:   s.fetch,
		},
	}
}

// Get retrieves a copy of the record with id.
func (s *Store) Get(id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(rec)
}

// Put stores a copy of values under values["id"], assigning a new ID when
// it is missing. Updating an existing record keeps the attributes values
// leaves out. Unique attributes already held by another record are
// reported as errormap.Errors and nothing is stored.
func (s *Store) Put(values map[string]any) (string, error) {
	rec, err := clone(values)
	if err != nil {
		return "", err
	}
	id, _ := rec[IDField].(string)
	if id == "" {
		id = uuid.NewString()
	}
	rec[IDField] = id

	s.mu.Lock()
	defer s.mu.Unlock()

	// Updates keep stored attributes the new values leave out
	old, exists := s.records[id]
	if exists {
		for k, v := range old {
			if _, ok := rec[k]; !ok {
				rec[k] = v
			}
		}
	}

	// Check for duplicates before touching any index
	var conflicts errormap.Errors
	for _, field := range s.uniqueFields() {
		key, ok := indexKey(rec[field])
		if !ok {
			continue
		}
		if owner, taken := s.unique[field][key]; taken && owner != id {
			conflicts = append(conflicts, errormap.FieldError{Field: field, Rule: "unique"})
		}
	}
	if conflicts != nil {
		return "", conflicts
	}

	if exists {
		s.unindex(id, old)
	}
	s.records[id] = rec
	s.index(id, rec)
	return id, nil
}

// Delete removes a record.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}

	s.unindex(id, rec)
	delete(s.records, id)
	return nil
}

// Count returns total record count.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear removes all records (for testing).
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]map[string]any)
	for field := range s.unique {
		s.unique[field] = make(map[string]string)
	}
}

func (s *Store) save(ctx context.Context, inst *models.Instance, opts models.Options) (any, error) {
	id, err := s.Put(inst.Values())
	if err != nil {
		return nil, err
	}
	rec, err := s.Get(id)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", id, err)
	}
	inst.Merge(rec)
	return inst.Values(), nil
}

func (s *Store) destroy(ctx context.Context, inst *models.Instance, opts models.Options) (any, error) {
	id := recordID(inst, opts)
	if id == "" {
		return nil, errormap.FieldError{Field: IDField, Rule: "required"}
	}
	if err := s.Delete(id); err != nil {
		return nil, fmt.Errorf("destroy %s: %w", id, err)
	}
	return id, nil
}

func (s *Store) fetch(ctx context.Context, inst *models.Instance, opts models.Options) (any, error) {
	id := recordID(inst, opts)
	if id == "" {
		return nil, errormap.FieldError{Field: IDField, Rule: "required"}
	}
	rec, err := s.Get(id)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	inst.Merge(rec)
	return inst.Values(), nil
}

func (s *Store) uniqueFields() []string {
	fields := make([]string, 0, len(s.unique))
	for field := range s.unique {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func (s *Store) index(id string, rec map[string]any) {
	for field, idx := range s.unique {
		if key, ok := indexKey(rec[field]); ok {
			idx[key] = id
		}
	}
}

func (s *Store) unindex(id string, rec map[string]any) {
	for field, idx := range s.unique {
		if key, ok := indexKey(rec[field]); ok && idx[key] == id {
			delete(idx, key)
		}
	}
}

// indexKey returns the index key for v. Missing values are not indexed, so
// any number of records may leave a unique attribute unset.
func indexKey(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	return fmt.Sprintf("%T:%v", v, v), true
}

func recordID(inst *models.Instance, opts models.Options) string {
	if id, ok := opts[IDField].(string); ok && id != "" {
		return id
	}
	id, _ := inst.Get(IDField)
	s, _ := id.(string)
	return s
}

func clone(values map[string]any) (map[string]any, error) {
	out, err := models.CloneValues(values)
	if err != nil {
		return nil, fmt.Errorf("copy record: %w", err)
	}
	return out, nil
}
