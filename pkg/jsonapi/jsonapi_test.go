package jsonapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestWriteDocument(t *testing.T) {
	t.Run("sets content type and status", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteResource(w, http.StatusOK, Resource{Type: "user", ID: "1"})

		if w.Header().Get("Content-Type") != ContentType {
			t.Errorf("Content-Type = %v, want %v", w.Header().Get("Content-Type"), ContentType)
		}
		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("writes valid JSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteResource(w, http.StatusOK, Resource{Type: "user", ID: "1"})

		var result Document
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Errorf("Invalid JSON: %v", err)
		}
	})
}

func TestWriteCollection_NilIsEmptyArray(t *testing.T) {
	w := httptest.NewRecorder()
	WriteCollection(w, http.StatusOK, nil)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["data"]) != "[]" {
		t.Errorf("data = %s, want []", raw["data"])
	}
}

func TestNewResource(t *testing.T) {
	r := NewResource("user", map[string]any{"id": "u1", "email": "a@example.com"})

	if r.ID != "u1" {
		t.Errorf("ID = %q, want u1", r.ID)
	}
	if want := map[string]any{"email": "a@example.com"}; !reflect.DeepEqual(r.Attributes, want) {
		t.Errorf("Attributes = %v, want %v", r.Attributes, want)
	}

	// Non-string IDs stay attributes
	r = NewResource("user", map[string]any{"id": 7})
	if r.ID != "" || r.Attributes["id"] != 7 {
		t.Errorf("numeric id handled as %+v", r)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		errs       []Error
		wantStatus int
	}{
		{"no errors", nil, http.StatusInternalServerError},
		{"bad request", []Error{ErrBadRequest("nope")}, http.StatusBadRequest},
		{"not found", []Error{ErrNotFound("model", "x")}, http.StatusNotFound},
		{"conflict", []Error{ErrFieldConflict("email", "unique", "")}, http.StatusConflict},
		{"field errors", []Error{ErrField("email", "required", ""), ErrField("age", "min", "")}, http.StatusUnprocessableEntity},
		{"missing status", []Error{{Code: "x"}}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.errs...)
			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}

			var doc Document
			if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
				t.Fatalf("Invalid JSON: %v", err)
			}
			if len(doc.Errors) == 0 {
				t.Error("document has no errors")
			}
		})
	}
}

func TestErrField(t *testing.T) {
	e := ErrField("email", "unique", "")
	if e.Code != "unique" {
		t.Errorf("Code = %q, want unique", e.Code)
	}
	if e.Source == nil || e.Source.Pointer != "/data/attributes/email" {
		t.Errorf("Source = %+v, want pointer to email", e.Source)
	}
	if e.Detail != "email failed unique" {
		t.Errorf("Detail = %q", e.Detail)
	}

	if e := ErrField("email", "unique", "taken"); e.Detail != "taken" {
		t.Errorf("Detail = %q, want taken", e.Detail)
	}
}

func TestErrorBuilder(t *testing.T) {
	e := NewError(418, "teapot", "Teapot").
		Detailf("%d cups", 3).
		Parameter("name").
		Meta("k", "v").
		Build()

	if e.StatusCode() != 418 {
		t.Errorf("StatusCode() = %d, want 418", e.StatusCode())
	}
	if e.Detail != "3 cups" {
		t.Errorf("Detail = %q", e.Detail)
	}
	if e.Source.Parameter != "name" {
		t.Errorf("Parameter = %q", e.Source.Parameter)
	}
	if e.Meta["k"] != "v" {
		t.Errorf("Meta = %v", e.Meta)
	}
}

func TestDocumentBuilder(t *testing.T) {
	doc := NewDocument().
		DataResource(Resource{Type: "user"}).
		Meta("location", "/done").
		Links(&Links{Self: "/models/user"}).
		JSONAPI().
		Build()

	if doc.Meta["location"] != "/done" {
		t.Errorf("Meta = %v", doc.Meta)
	}
	if doc.Links.Self != "/models/user" {
		t.Errorf("Links = %+v", doc.Links)
	}
	if doc.JSONAPI.Version != Version {
		t.Errorf("JSONAPI = %+v", doc.JSONAPI)
	}

	errDoc := NewDocument().DataResource(Resource{Type: "user"}).Errors(ErrInternal("")).Build()
	if errDoc.Data != nil {
		t.Error("Errors should clear Data")
	}
	if errDoc.Errors[0].Detail != "An internal error occurred" {
		t.Errorf("default internal detail = %q", errDoc.Errors[0].Detail)
	}
}
