package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSchema(t *testing.T) {
	t.Run("valid schema loads", func(t *testing.T) {
		schema, err := LoadSchema(filepath.Join("testdata", "valid_schema.yaml"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !schema.IsValidRelationshipType("mentor") {
			t.Fatalf("expected mentor relationship type to be valid")
		}
	})

	t.Run("reserved attribute name", func(t *testing.T) {
		path := writeTempSchema(t, "version: 1\nattributes:\n  - { name: $alive, type: boolean }\n")
		if _, err := LoadSchema(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("duplicate attribute names", func(t *testing.T) {
		path := writeTempSchema(t, "version: 1\nattributes:\n  - { name: mood, type: string }\n  - { name: mood, type: number }\n")
		if _, err := LoadSchema(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("enum attribute without values", func(t *testing.T) {
		path := writeTempSchema(t, "version: 1\nattributes:\n  - { name: mood, type: enum }\n")
		if _, err := LoadSchema(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unknown attribute type", func(t *testing.T) {
		path := writeTempSchema(t, "version: 1\nattributes:\n  - { name: mood, type: color }\n")
		if _, err := LoadSchema(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unknown applies_to kind", func(t *testing.T) {
		path := writeTempSchema(t, "version: 1\nattributes:\n  - { name: mood, type: string, applies_to: [place] }\n")
		if _, err := LoadSchema(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("duplicate relationship type ids", func(t *testing.T) {
		path := writeTempSchema(t, "version: 1\nrelationship_types:\n  - id: mentor\n  - id: Mentor\n")
		if _, err := LoadSchema(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unsupported version", func(t *testing.T) {
		path := writeTempSchema(t, "version: 3\n")
		if _, err := LoadSchema(path); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestSchemaHelpers(t *testing.T) {
	schema, err := LoadSchema(filepath.Join("testdata", "valid_schema.yaml"))
	if err != nil {
		t.Fatalf("loading schema: %v", err)
	}

	t.Run("NodeName uses the type name", func(t *testing.T) {
		name, err := schema.NodeName(context.Background(), "MENTOR")
		if err != nil || name != "mentor of" {
			t.Fatalf("expected mentor of, got %q (%v)", name, err)
		}
	})

	t.Run("NodeName defaults to the id", func(t *testing.T) {
		if name, _ := schema.NodeName(context.Background(), "owns"); name != "owns" {
			t.Fatalf("expected owns, got %q", name)
		}
		if name, _ := schema.NodeName(context.Background(), "rival"); name != "rival" {
			t.Fatalf("expected rival, got %q", name)
		}
	})

	t.Run("nil schema", func(t *testing.T) {
		var nilSchema *Schema
		if _, ok := nilSchema.Attribute("mood"); ok {
			t.Fatalf("expected no attribute")
		}
	})

	t.Run("AppliesToKind", func(t *testing.T) {
		wounds, _ := schema.Attribute("wounds")
		if wounds.AppliesToKind("thing") {
			t.Fatalf("wounds should not apply to things")
		}
		mood, _ := schema.Attribute("mood")
		if !mood.AppliesToKind("thing") {
			t.Fatalf("mood applies to every kind")
		}
	})
}

func TestCheckValue(t *testing.T) {
	schema, err := LoadSchema(filepath.Join("testdata", "valid_schema.yaml"))
	if err != nil {
		t.Fatalf("loading schema: %v", err)
	}

	tests := []struct {
		attr    string
		value   any
		wantErr bool
	}{
		{"mood", "Calm", false},
		{"mood", "ecstatic", true},
		{"mood", 3.0, true},
		{"title", "Queen", false},
		{"title", true, true},
		{"wounds", 2.0, false},
		{"wounds", "two", true},
		{"crowned_at", "2024-01-02T03:04:05Z", false},
		{"crowned_at", "yesterday", true},
		{"crowned_at", 1700000000.0, false},
		{"title", nil, false},
	}
	for _, tt := range tests {
		attr, ok := schema.Attribute(tt.attr)
		if !ok {
			t.Fatalf("missing attribute %s", tt.attr)
		}
		err := attr.CheckValue(tt.value)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s=%v: wantErr %v, got %v", tt.attr, tt.value, tt.wantErr, err)
		}
	}
}

func writeTempSchema(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing temp schema: %v", err)
	}
	return path
}
