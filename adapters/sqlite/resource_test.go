package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/artpar/modelform/adapters/sqlite"
	"github.com/artpar/modelform/core/errormap"
	"github.com/artpar/modelform/core/models"
	"github.com/artpar/modelform/core/schema"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "modelform-test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func userSchema() schema.Schema {
	return schema.Schema{
		Attributes: schema.Attributes{
			"email": {
				schema.KeyType:     schema.Static("email"),
				schema.KeyRequired: schema.Static(true),
				schema.KeyUnique:   schema.Static(true),
			},
			"name": {
				schema.KeyType:       schema.Static("string"),
				schema.KeyColumnName: schema.Static("full_name"),
			},
			"age":    schema.Shorthand("integer"),
			"active": schema.Shorthand("boolean"),
			"tags": {
				schema.KeyType:       schema.Static("array"),
				schema.KeyDefaultsTo: schema.Static([]any{}),
			},
		},
	}
}

func userModel(t *testing.T, db *sqlite.DB) *models.Model {
	t.Helper()
	res, err := db.Resource(context.Background(), "users", userSchema())
	if err != nil {
		t.Fatalf("Resource() error = %v", err)
	}
	return models.New(zerolog.Nop()).
		Add("user", res).
		Schemas(map[string]schema.Schema{"user": userSchema()}).
		MustGet("user")
}

func TestSaveAndFetch(t *testing.T) {
	db := setupTestDB(t)
	m := userModel(t, db)
	ctx := context.Background()

	inst := m.New(map[string]any{
		"email":  "ann@example.com",
		"name":   "Ann",
		"age":    31,
		"active": true,
		"tags":   []any{"admin"},
	})
	if _, err := inst.Do(ctx, sqlite.ActionSave, nil); err != nil {
		t.Fatalf("save error = %v", err)
	}
	id, _ := inst.Get("id")
	if id == "" || id == nil {
		t.Fatal("save should assign an id")
	}

	loaded := m.New(map[string]any{"id": id})
	if _, err := loaded.Do(ctx, sqlite.ActionFetch, nil); err != nil {
		t.Fatalf("fetch error = %v", err)
	}

	want := map[string]any{
		"id":     id,
		"email":  "ann@example.com",
		"name":   "Ann",
		"age":    int64(31),
		"active": true,
		"tags":   []any{"admin"},
	}
	if got := loaded.Values(); !reflect.DeepEqual(got, want) {
		t.Errorf("fetched %v, want %v", got, want)
	}
}

func TestSaveUpdates(t *testing.T) {
	db := setupTestDB(t)
	m := userModel(t, db)
	ctx := context.Background()

	inst := m.New(map[string]any{"email": "a@example.com", "name": "A"})
	if _, err := inst.Do(ctx, sqlite.ActionSave, nil); err != nil {
		t.Fatal(err)
	}
	inst.Set("name", "B")
	if _, err := inst.Do(ctx, sqlite.ActionSave, nil); err != nil {
		t.Fatalf("update error = %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}

	var name string
	if err := db.QueryRow(`SELECT full_name FROM users`).Scan(&name); err != nil {
		t.Fatal(err)
	}
	if name != "B" {
		t.Errorf("full_name = %q, want B", name)
	}
}

func TestSavePartialUpdateKeepsColumns(t *testing.T) {
	db := setupTestDB(t)
	m := userModel(t, db)
	ctx := context.Background()

	inst := m.New(map[string]any{
		"email": "ann@example.com",
		"name":  "Ann",
		"age":   31,
		"tags":  []any{"admin"},
	})
	if _, err := inst.Do(ctx, sqlite.ActionSave, nil); err != nil {
		t.Fatal(err)
	}
	id, _ := inst.Get("id")

	update := m.New(map[string]any{"id": id, "age": 32})
	update.Unset("tags")
	got, err := update.Do(ctx, sqlite.ActionSave, nil)
	if err != nil {
		t.Fatalf("update error = %v", err)
	}

	want := map[string]any{
		"id":     id,
		"email":  "ann@example.com",
		"name":   "Ann",
		"age":    int64(32),
		"active": nil,
		"tags":   []any{"admin"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("save returned %v, want %v", got, want)
	}

	var name, email string
	if err := db.QueryRow(`SELECT full_name, email FROM users WHERE id = ?`, id).Scan(&name, &email); err != nil {
		t.Fatal(err)
	}
	if name != "Ann" || email != "ann@example.com" {
		t.Errorf("row = (%q, %q), want unsent columns kept", name, email)
	}
}

func TestSaveOnlyIDKeepsRow(t *testing.T) {
	db := setupTestDB(t)
	m := userModel(t, db)
	ctx := context.Background()

	inst := m.New(map[string]any{"email": "ann@example.com", "name": "Ann"})
	if _, err := inst.Do(ctx, sqlite.ActionSave, nil); err != nil {
		t.Fatal(err)
	}
	id, _ := inst.Get("id")

	update := m.New(map[string]any{"id": id})
	update.Unset("tags")
	if _, err := update.Do(ctx, sqlite.ActionSave, nil); err != nil {
		t.Fatalf("save error = %v", err)
	}
	if got, _ := update.Get("email"); got != "ann@example.com" {
		t.Errorf("email = %v, want stored value", got)
	}
}

func TestSaveUniqueViolation(t *testing.T) {
	db := setupTestDB(t)
	m := userModel(t, db)
	ctx := context.Background()

	if _, err := m.New(map[string]any{"email": "dup@example.com"}).Do(ctx, sqlite.ActionSave, nil); err != nil {
		t.Fatal(err)
	}

	second := m.New(map[string]any{"email": "dup@example.com"})
	_, err := second.Do(ctx, sqlite.ActionSave, nil)

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

func TestDestroy(t *testing.T) {
	db := setupTestDB(t)
	m := userModel(t, db)
	ctx := context.Background()

	inst := m.New(map[string]any{"email": "gone@example.com"})
	if _, err := inst.Do(ctx, sqlite.ActionSave, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := inst.Do(ctx, sqlite.ActionDestroy, nil); err != nil {
		t.Fatalf("destroy error = %v", err)
	}
	if _, err := inst.Do(ctx, sqlite.ActionFetch, nil); !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("fetch after destroy error = %v, want ErrNotFound", err)
	}
	if _, err := inst.Do(ctx, sqlite.ActionDestroy, nil); !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("second destroy error = %v, want ErrNotFound", err)
	}
}

func TestActionsRequireID(t *testing.T) {
	db := setupTestDB(t)
	m := userModel(t, db)

	for _, action := range []string{sqlite.ActionFetch, sqlite.ActionDestroy} {
		_, err := m.New(nil).Do(context.Background(), action, nil)
		fes := errormap.Extract(err)
		if len(fes) != 1 || fes[0].Field != "id" {
			t.Errorf("%s without id: error = %v", action, err)
		}
	}
}

func TestFetchByOption(t *testing.T) {
	db := setupTestDB(t)
	m := userModel(t, db)
	ctx := context.Background()

	saved := m.New(map[string]any{"email": "opt@example.com"})
	if _, err := saved.Do(ctx, sqlite.ActionSave, nil); err != nil {
		t.Fatal(err)
	}
	id, _ := saved.Get("id")

	inst := m.New(nil)
	if _, err := inst.Do(ctx, sqlite.ActionFetch, models.Options{"id": id}); err != nil {
		t.Fatal(err)
	}
	if email, _ := inst.Get("email"); email != "opt@example.com" {
		t.Errorf("email = %v", email)
	}
}

func TestResourceIdempotent(t *testing.T) {
	db := setupTestDB(t)
	for i := 0; i < 2; i++ {
		if _, err := db.Resource(context.Background(), "users", userSchema()); err != nil {
			t.Fatalf("Resource() call %d error = %v", i, err)
		}
	}
}

func TestResourceInvalidNames(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.Resource(ctx, "users; DROP", userSchema()); err == nil {
		t.Error("invalid table name should be rejected")
	}

	bad := schema.Schema{Attributes: schema.Attributes{
		"x": {schema.KeyColumnName: schema.Static("bad column")},
	}}
	if _, err := db.Resource(ctx, "things", bad); err == nil {
		t.Error("invalid column name should be rejected")
	}

	clash := schema.Schema{Attributes: schema.Attributes{
		"a": {schema.KeyColumnName: schema.Static("c")},
		"b": {schema.KeyColumnName: schema.Static("c")},
	}}
	if _, err := db.Resource(ctx, "clash", clash); err == nil {
		t.Error("duplicate column should be rejected")
	}
}
