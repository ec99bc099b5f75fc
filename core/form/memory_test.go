package form

import (
	"reflect"
	"strings"
	"testing"
)

func TestControlParserPipeline(t *testing.T) {
	c := NewControl("name", "")
	c.AddParser(func(v any) any { return strings.TrimSpace(v.(string)) })
	c.AddParser(func(v any) any {
		c.SetValidity("minLength", len(v.(string)) >= 3)
		return v
	})

	if got := c.SetViewValue("  ab "); got != "ab" {
		t.Errorf("parsed value = %v, want ab", got)
	}
	if c.Valid() {
		t.Error("control should be invalid")
	}
	if got := c.Errors(); !reflect.DeepEqual(got, []string{"minLength"}) {
		t.Errorf("Errors() = %v", got)
	}
	if !c.Dirty() || !c.Touched() {
		t.Error("edited control should be dirty and touched")
	}

	c.SetViewValue("abc")
	if !c.Valid() {
		t.Error("control should be valid")
	}
	if c.ViewValue() != "abc" || c.Value() != "abc" {
		t.Errorf("view=%v value=%v", c.ViewValue(), c.Value())
	}
}

func TestSetOnFieldAdded(t *testing.T) {
	s := NewSet(NewControl("a", 1))

	var added []string
	s.OnFieldAdded(func(f Field) {
		added = append(added, f.Name())
	})

	s.Add(NewControl("b", 2))
	s.Add(NewControl("c", 3))

	if !reflect.DeepEqual(added, []string{"b", "c"}) {
		t.Errorf("hooks saw %v, want [b c]", added)
	}

	var names []string
	for _, f := range s.Fields() {
		names = append(names, f.Name())
	}
	if !reflect.DeepEqual(names, []string{"a", "b", "c"}) {
		t.Errorf("Fields() order = %v", names)
	}
}

func TestSetHookRegistersHook(t *testing.T) {
	s := NewSet()

	var calls []string
	s.OnFieldAdded(func(f Field) {
		calls = append(calls, "outer:"+f.Name())
		s.OnFieldAdded(func(f Field) {
			calls = append(calls, "inner:"+f.Name())
		})
	})

	s.Add(NewControl("a", 1))
	if !reflect.DeepEqual(calls, []string{"outer:a"}) {
		t.Fatalf("first add calls = %v, want [outer:a]", calls)
	}

	calls = nil
	s.Add(NewControl("b", 2))
	if !reflect.DeepEqual(calls, []string{"outer:b", "inner:b"}) {
		t.Errorf("second add calls = %v, want [outer:b inner:b]", calls)
	}
}

func TestSetReplaceControl(t *testing.T) {
	s := NewSet(NewControl("a", 1), NewControl("b", 2))
	replacement := NewControl("a", 10)
	s.Add(replacement)

	if len(s.Fields()) != 2 {
		t.Fatalf("Fields() len = %d, want 2", len(s.Fields()))
	}
	c, ok := s.Control("a")
	if !ok || c != replacement {
		t.Error("control a was not replaced")
	}
}

func TestSetPristineAndValidity(t *testing.T) {
	s := FromValues(map[string]any{"email": "", "name": "x"})

	email, _ := s.Control("email")
	email.SetViewValue("bad")
	email.SetValidity("email", false)

	if !s.Dirty() {
		t.Error("form should be dirty")
	}
	if s.Valid() {
		t.Error("form should be invalid")
	}
	if got := s.Errors(); !reflect.DeepEqual(got, map[string][]string{"email": {"email"}}) {
		t.Errorf("Errors() = %v", got)
	}

	s.SetPristine()
	if s.Dirty() || email.Touched() {
		t.Error("form should be pristine")
	}
	// Pristine does not clear validity.
	if s.Valid() {
		t.Error("SetPristine must not reset validity")
	}

	want := map[string]any{"email": "bad", "name": "x"}
	if got := s.Values(); !reflect.DeepEqual(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
}

func TestIsEmpty(t *testing.T) {
	c := NewControl("x", nil)
	for _, v := range []any{nil, "", []any{}} {
		if !c.IsEmpty(v) {
			t.Errorf("IsEmpty(%v) = false", v)
		}
	}
	for _, v := range []any{"a", 0, false} {
		if c.IsEmpty(v) {
			t.Errorf("IsEmpty(%v) = true", v)
		}
	}
}
