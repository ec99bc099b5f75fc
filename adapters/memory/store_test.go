package memory_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/modelform/adapters/memory"
	"github.com/artpar/modelform/core/errormap"
	"github.com/artpar/modelform/core/models"
	"github.com/artpar/modelform/core/schema"
)

func userSchema() schema.Schema {
	return schema.Schema{
		Attributes: schema.Attributes{
			"email": {
				schema.KeyType:   schema.Static("email"),
				schema.KeyUnique: schema.Static(true),
			},
			"name": schema.Shorthand("string"),
			"tags": schema.Shorthand("array"),
		},
	}
}

func userModel(t *testing.T) (*models.Model, *memory.Store) {
	t.Helper()
	store := memory.NewStore(userSchema())
	m := models.New(zerolog.Nop()).
		Add("user", store.Resource()).
		Schemas(map[string]schema.Schema{"user": userSchema()}).
		MustGet("user")
	return m, store
}

func TestStore_NewStore(t *testing.T) {
	store := memory.NewStore(userSchema())
	if store.Count() != 0 {
		t.Errorf("new store should be empty, got %d records", store.Count())
	}
}

func TestStore_SaveAndFetch(t *testing.T) {
	m, store := userModel(t)
	ctx := context.Background()

	inst := m.New(map[string]any{
		"email": "ann@example.com",
		"name":  "Ann",
		"tags":  []any{"admin"},
	})
	if _, err := inst.Do(ctx, memory.ActionSave, nil); err != nil {
		t.Fatalf("save error = %v", err)
	}
	id, _ := inst.Get("id")
	if id == nil || id == "" {
		t.Fatal("save should assign an id")
	}
	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}

	loaded := m.New(nil)
	if _, err := loaded.Do(ctx, memory.ActionFetch, models.Options{"id": id}); err != nil {
		t.Fatalf("fetch error = %v", err)
	}
	want := map[string]any{
		"id":    id,
		"email": "ann@example.com",
		"name":  "Ann",
		"tags":  []any{"admin"},
	}
	if got := loaded.Values(); !reflect.DeepEqual(got, want) {
		t.Errorf("fetched %v, want %v", got, want)
	}
}

func TestStore_RecordsAreCopies(t *testing.T) {
	store := memory.NewStore(userSchema())

	tags := []any{"a"}
	id, err := store.Put(map[string]any{"tags": tags})
	if err != nil {
		t.Fatal(err)
	}
	tags[0] = "changed"

	rec, err := store.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	rec["tags"].([]any)[0] = "also changed"

	again, _ := store.Get(id)
	if got := again["tags"].([]any)[0]; got != "a" {
		t.Errorf("stored tag = %v, want a", got)
	}
}

func TestStore_KeepsTimeValues(t *testing.T) {
	store := memory.NewStore(userSchema())
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := store.Put(map[string]any{"joined": at})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := store.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := rec["joined"].(time.Time); !got.Equal(at) {
		t.Errorf("joined = %v, want %v", rec["joined"], at)
	}
}

func TestStore_UniqueViolation(t *testing.T) {
	m, _ := userModel(t)
	ctx := context.Background()

	if _, err := m.New(map[string]any{"email": "dup@example.com"}).Do(ctx, memory.ActionSave, nil); err != nil {
		t.Fatal(err)
	}

	second := m.New(map[string]any{"email": "dup@example.com"})
	_, err := second.Do(ctx, memory.ActionSave, nil)

	var fieldErrs errormap.Errors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("error = %v, want errormap.Errors", err)
	}
	want := errormap.Errors{{Field: "email", Rule: "unique"}}
	if !reflect.DeepEqual(fieldErrs, want) {
		t.Errorf("field errors = %v, want %v", fieldErrs, want)
	}
	if id, _ := second.Get("id"); id != nil {
		t.Error("failed save must not assign an id")
	}
}

func TestStore_UpdateKeepsOwnUniqueValue(t *testing.T) {
	store := memory.NewStore(userSchema())

	id, err := store.Put(map[string]any{"email": "a@example.com", "name": "A"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Put(map[string]any{"id": id, "email": "a@example.com", "name": "B"}); err != nil {
		t.Fatalf("update error = %v", err)
	}

	// Changing the email frees the old value
	if _, err := store.Put(map[string]any{"id": id, "email": "b@example.com"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Put(map[string]any{"email": "a@example.com"}); err != nil {
		t.Errorf("old email should be free again, got %v", err)
	}
	if store.Count() != 2 {
		t.Errorf("Count() = %d, want 2", store.Count())
	}
}

func TestStore_PartialUpdateKeepsAttributes(t *testing.T) {
	m, store := userModel(t)
	ctx := context.Background()

	id, err := store.Put(map[string]any{"email": "a@example.com", "name": "A"})
	if err != nil {
		t.Fatal(err)
	}

	inst := m.New(map[string]any{"id": id, "tags": []any{"x"}})
	got, err := inst.Do(ctx, memory.ActionSave, nil)
	if err != nil {
		t.Fatalf("update error = %v", err)
	}
	want := map[string]any{
		"id":    id,
		"email": "a@example.com",
		"name":  "A",
		"tags":  []any{"x"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("save returned %v, want %v", got, want)
	}

	// The kept email is still indexed
	if _, err := store.Put(map[string]any{"email": "a@example.com"}); err == nil {
		t.Error("expected unique violation for the kept email")
	}
}

func TestStore_MissingUniqueValuesAllowed(t *testing.T) {
	store := memory.NewStore(userSchema())
	for i := 0; i < 3; i++ {
		if _, err := store.Put(map[string]any{"name": "anon"}); err != nil {
			t.Fatalf("put %d error = %v", i, err)
		}
	}
}

func TestStore_Destroy(t *testing.T) {
	m, _ := userModel(t)
	ctx := context.Background()

	inst := m.New(map[string]any{"email": "gone@example.com"})
	if _, err := inst.Do(ctx, memory.ActionSave, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := inst.Do(ctx, memory.ActionDestroy, nil); err != nil {
		t.Fatalf("destroy error = %v", err)
	}
	if _, err := inst.Do(ctx, memory.ActionFetch, nil); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("fetch after destroy error = %v, want ErrNotFound", err)
	}
	if _, err := inst.Do(ctx, memory.ActionDestroy, nil); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("second destroy error = %v, want ErrNotFound", err)
	}

	// Email is released by destroy
	if _, err := m.New(map[string]any{"email": "gone@example.com"}).Do(ctx, memory.ActionSave, nil); err != nil {
		t.Errorf("re-save after destroy error = %v", err)
	}
}

func TestStore_ActionsRequireID(t *testing.T) {
	m, _ := userModel(t)

	for _, action := range []string{memory.ActionFetch, memory.ActionDestroy} {
		_, err := m.New(nil).Do(context.Background(), action, nil)
		fes := errormap.Extract(err)
		if len(fes) != 1 || fes[0].Field != "id" || fes[0].Rule != "required" {
			t.Errorf("%s without id: error = %v", action, err)
		}
	}
}

func TestStore_Clear(t *testing.T) {
	store := memory.NewStore(userSchema())
	if _, err := store.Put(map[string]any{"email": "x@example.com"}); err != nil {
		t.Fatal(err)
	}
	store.Clear()
	if store.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", store.Count())
	}
	if _, err := store.Put(map[string]any{"email": "x@example.com"}); err != nil {
		t.Errorf("unique index should be cleared, got %v", err)
	}
}

func TestStore_ConcurrentUniquePut(t *testing.T) {
	store := memory.NewStore(userSchema())

	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Put(map[string]any{"email": "race@example.com"}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successful puts = %d, want 1", successes)
	}
}
