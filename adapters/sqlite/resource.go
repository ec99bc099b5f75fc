package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/artpar/modelform/core/errormap"
	"github.com/artpar/modelform/core/models"
	"github.com/artpar/modelform/core/schema"
)

// Action names provided by a table resource.
const (
	ActionSave    = "save"
	ActionDestroy = "destroy"
	ActionFetch   = "fetch"
)

// IDField is the attribute holding the record ID.
const IDField = "id"

// ErrNotFound is returned when no row has the requested ID.
var ErrNotFound = errors.New("record not found")

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type column struct {
	field  string
	name   string
	kind   string // TEXT, INTEGER, REAL
	encode func(any) (any, error)
	decode func(any) (any, error)
	unique bool
}

// table maps one schema onto one SQLite table.
type table struct {
	db      *DB
	name    string
	columns []column
	byName  map[string]string // column name -> field
}

// Resource creates the table for s if missing and returns a resource with
// save, destroy and fetch actions backed by it.
func (db *DB) Resource(ctx context.Context, name string, s schema.Schema) (*models.Resource, error) {
	t, err := newTable(db, name, s)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, t.createSQL()); err != nil {
		return nil, fmt.Errorf("create table %s: %w", name, err)
	}

	return &models.Resource{
		Actions: map[string]models.ActionFunc{
			ActionSave:    t.save,
			ActionDestroy: t.destroy,
			ActionFetch:   t.fetch,
		},
	}, nil
}

func newTable(db *DB, name string, s schema.Schema) (*table, error) {
	if !identifier.MatchString(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}

	t := &table{db: db, name: name, byName: map[string]string{IDField: IDField}}
	for _, field := range s.Attributes.Names() {
		if field == IDField {
			continue
		}
		attr := s.Attributes[field]
		col := columnFor(field, attr, s.Types)
		if !identifier.MatchString(col.name) {
			return nil, fmt.Errorf("table %s: invalid column name %q", name, col.name)
		}
		if other, taken := t.byName[col.name]; taken {
			return nil, fmt.Errorf("table %s: column %s used by %s and %s", name, col.name, other, field)
		}
		t.byName[col.name] = field
		t.columns = append(t.columns, col)
	}
	return t, nil
}

func columnFor(field string, attr schema.Attribute, types schema.Types) column {
	col := column{
		field:  field,
		name:   attr.Column(field),
		kind:   "TEXT",
		encode: encodeScalar,
		decode: decodeScalar,
		unique: attr.IsUnique(),
	}

	typ := attr.Type()
	if custom, ok := types[typ]; ok {
		typ = custom.Type()
	}
	switch typ {
	case "integer", "int":
		col.kind = "INTEGER"
	case "number", "float", "decimal":
		col.kind = "REAL"
	case "boolean":
		col.kind = "INTEGER"
		col.encode = encodeBool
		col.decode = decodeBool
	case "array", "json":
		col.encode = encodeJSON
		col.decode = decodeJSON
	}
	return col
}

func (t *table) createSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %q (\n\t%q TEXT PRIMARY KEY", t.name, IDField)
	for _, col := range t.columns {
		fmt.Fprintf(&b, ",\n\t%q %s", col.name, col.kind)
		if col.unique {
			b.WriteString(" UNIQUE")
		}
	}
	b.WriteString("\n)")
	return b.String()
}

// save inserts the instance, or updates the row when its id exists. Only
// attributes the instance holds are written.
func (t *table) save(ctx context.Context, inst *models.Instance, opts models.Options) (any, error) {
	values := inst.Values()
	id, _ := values[IDField].(string)
	if id == "" {
		id = uuid.NewString()
	}

	names := []string{fmt.Sprintf("%q", IDField)}
	placeholders := []string{"?"}
	updates := make([]string, 0, len(t.columns))
	args := []any{id}
	for _, col := range t.columns {
		raw, ok := values[col.field]
		if !ok {
			// Unheld attributes keep their stored value on update.
			continue
		}
		v, err := col.encode(raw)
		if err != nil {
			return nil, fmt.Errorf("save %s: encode %s: %w", t.name, col.field, err)
		}
		names = append(names, fmt.Sprintf("%q", col.name))
		placeholders = append(placeholders, "?")
		updates = append(updates, fmt.Sprintf("%q = excluded.%q", col.name, col.name))
		args = append(args, v)
	}

	query := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		t.name, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	if len(updates) > 0 {
		query += fmt.Sprintf(" ON CONFLICT(%q) DO UPDATE SET %s", IDField, strings.Join(updates, ", "))
	} else {
		query += fmt.Sprintf(" ON CONFLICT(%q) DO NOTHING", IDField)
	}

	if _, err := t.db.ExecContext(ctx, query, args...); err != nil {
		if fieldErrs := t.constraintErrors(err); fieldErrs != nil {
			return nil, fieldErrs
		}
		return nil, fmt.Errorf("save %s: %w", t.name, err)
	}

	inst.Set(IDField, id)
	return t.fetch(ctx, inst, models.Options{IDField: id})
}

func (t *table) destroy(ctx context.Context, inst *models.Instance, opts models.Options) (any, error) {
	id := recordID(inst, opts)
	if id == "" {
		return nil, errormap.FieldError{Field: IDField, Rule: "required"}
	}

	res, err := t.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %q WHERE %q = ?", t.name, IDField), id)
	if err != nil {
		return nil, fmt.Errorf("destroy %s: %w", t.name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("destroy %s %s: %w", t.name, id, ErrNotFound)
	}
	return id, nil
}

func (t *table) fetch(ctx context.Context, inst *models.Instance, opts models.Options) (any, error) {
	id := recordID(inst, opts)
	if id == "" {
		return nil, errormap.FieldError{Field: IDField, Rule: "required"}
	}

	names := make([]string, len(t.columns))
	for i, col := range t.columns {
		names[i] = fmt.Sprintf("%q", col.name)
	}
	query := fmt.Sprintf("SELECT %q", IDField)
	if len(names) > 0 {
		query += ", " + strings.Join(names, ", ")
	}
	query += fmt.Sprintf(" FROM %q WHERE %q = ?", t.name, IDField)

	raw := make([]any, len(t.columns)+1)
	dest := make([]any, len(raw))
	for i := range raw {
		dest[i] = &raw[i]
	}

	err := t.db.QueryRowContext(ctx, query, id).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fetch %s %s: %w", t.name, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", t.name, err)
	}

	values := map[string]any{IDField: id}
	for i, col := range t.columns {
		v, err := col.decode(raw[i+1])
		if err != nil {
			return nil, fmt.Errorf("fetch %s: decode %s: %w", t.name, col.field, err)
		}
		values[col.field] = v
	}
	inst.Merge(values)
	return inst.Values(), nil
}

// constraintErrors turns UNIQUE constraint failures into field errors.
func (t *table) constraintErrors(err error) errormap.Errors {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return nil
	}
	if sqlErr.ExtendedCode != sqlite3.ErrConstraintUnique && sqlErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return nil
	}

	// Message format: "UNIQUE constraint failed: users.email, users.name"
	msg := sqlErr.Error()
	idx := strings.Index(msg, ":")
	if idx < 0 {
		return nil
	}

	var out errormap.Errors
	for _, qualified := range strings.Split(msg[idx+1:], ",") {
		qualified = strings.TrimSpace(qualified)
		name := qualified[strings.LastIndex(qualified, ".")+1:]
		if field, ok := t.byName[name]; ok {
			out = append(out, errormap.FieldError{Field: field, Rule: "unique"})
		}
	}
	return out
}

func recordID(inst *models.Instance, opts models.Options) string {
	if id, ok := opts[IDField].(string); ok && id != "" {
		return id
	}
	id, _ := inst.Get(IDField)
	s, _ := id.(string)
	return s
}

func encodeScalar(v any) (any, error) {
	return v, nil
}

func decodeScalar(v any) (any, error) {
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return v, nil
}

func encodeBool(v any) (any, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if b {
			return 1, nil
		}
		return 0, nil
	case string:
		switch b {
		case "true":
			return 1, nil
		case "false", "":
			return 0, nil
		}
	}
	return nil, fmt.Errorf("not a boolean: %v", v)
}

func decodeBool(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return n != 0, nil
	}
	return nil, fmt.Errorf("unexpected boolean column value %T", v)
}

func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeJSON(v any) (any, error) {
	var data []byte
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		data = []byte(s)
	case []byte:
		data = s
	default:
		return nil, fmt.Errorf("unexpected json column value %T", v)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
