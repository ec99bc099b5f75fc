package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artpar/modelform/core/schema"
)

const userYAML = `
user:
  attributes:
    email: { type: email, required: true }
    role:  { type: string, in: [admin, member], defaultsTo: member }
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckValues(t *testing.T) {
	doc, err := schema.Parse([]byte(userYAML))
	if err != nil {
		t.Fatal(err)
	}
	m, err := modelFor(doc, "user")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		values   map[string]any
		minFails int
		expect   []string
	}{
		{"valid", map[string]any{"email": "a@example.com"}, 0, []string{"user is valid"}},
		{"missing required", map[string]any{}, 1, []string{"email.required"}},
		{"bad values", map[string]any{"email": "nope", "role": "root"}, 2, []string{"email.type", "role.in"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			got := checkValues(&buf, m, tt.values)
			if got < tt.minFails || (tt.minFails == 0 && got != 0) {
				t.Errorf("failures = %d, want at least %d: %s", got, tt.minFails, buf.String())
			}
			for _, want := range tt.expect {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output %q missing %q", buf.String(), want)
				}
			}
		})
	}
}

func TestModelFor_Unknown(t *testing.T) {
	if _, err := modelFor(schema.Document{}, "ghost"); err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestReadValues(t *testing.T) {
	dir := t.TempDir()

	jsonPath := writeFile(t, dir, "user.json", `{"email": "a@example.com", "tags": ["x"]}`)
	values, err := readValues(jsonPath)
	if err != nil {
		t.Fatalf("readValues(json) error = %v", err)
	}
	if values["email"] != "a@example.com" {
		t.Errorf("email = %v", values["email"])
	}

	yamlPath := writeFile(t, dir, "user.yaml", "email: b@example.com\n")
	values, err = readValues(yamlPath)
	if err != nil {
		t.Fatalf("readValues(yaml) error = %v", err)
	}
	if values["email"] != "b@example.com" {
		t.Errorf("email = %v", values["email"])
	}

	if _, err := readValues(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	schemas := filepath.Join(dir, "schemas")
	if err := os.MkdirAll(schemas, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, schemas, "user.yaml", userYAML)
	cfg := writeFile(t, dir, "modelform.yaml", "database:\n  driver: memory\nschemas:\n  paths: ["+schemas+"]\n")
	good := writeFile(t, dir, "good.json", `{"email": "a@example.com"}`)
	bad := writeFile(t, dir, "bad.json", `{"email": "nope"}`)

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		expect  string
	}{
		{"version", []string{"version"}, false, "modelform dev"},
		{"validate", []string{"validate", "--config", cfg}, false, "user (2 attributes)"},
		{"validate missing", []string{"validate", "--config", filepath.Join(dir, "none.yaml")}, true, "Config file exists"},
		{"check valid", []string{"check", "user", good, "--config", cfg}, false, "user is valid"},
		{"check invalid", []string{"check", "user", bad, "--config", cfg}, true, "email.type"},
		{"check unknown model", []string{"check", "ghost", good, "--config", cfg}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MODELFORM_SCHEMAS", "")

			var buf bytes.Buffer
			rootCmd.SetOut(&buf)
			rootCmd.SetErr(&buf)
			rootCmd.SetArgs(tt.args)

			err := rootCmd.Execute()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v: %s", err, tt.wantErr, buf.String())
			}
			if !strings.Contains(buf.String(), tt.expect) {
				t.Errorf("output %q missing %q", buf.String(), tt.expect)
			}
		})
	}
}
