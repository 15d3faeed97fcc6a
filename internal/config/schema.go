package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Attribute value types.
const (
	TypeString    = "string"
	TypeNumber    = "number"
	TypeBoolean   = "boolean"
	TypeEnum      = "enum"
	TypeTimestamp = "timestamp"
	TypeTimespan  = "timespan"
)

// Schema is the world's attribute dictionary and relationship type list.
// The engine stores attribute values opaquely; the schema only names
// relationship types and types attributes for the audit.
type Schema struct {
	Version           int                `yaml:"version"`
	Attributes        []Attribute        `yaml:"attributes"`
	RelationshipTypes []RelationshipType `yaml:"relationship_types"`

	attrIndex map[string]*Attribute
	relIndex  map[string]*RelationshipType
}

type Attribute struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Values   []string `yaml:"values"`
	Required bool     `yaml:"required"`
	// AppliesTo lists the subject kinds (character, thing, relationship)
	// the attribute is meant for. Empty means any.
	AppliesTo []string `yaml:"applies_to"`
}

type RelationshipType struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Inverse   string `yaml:"inverse"`
	Symmetric bool   `yaml:"symmetric"`
}

func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	return ParseSchema(data)
}

func ParseSchema(data []byte) (*Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	if err := validateSchema(&schema); err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	schema.attrIndex = make(map[string]*Attribute)
	for i := range schema.Attributes {
		attr := &schema.Attributes[i]
		schema.attrIndex[attr.Name] = attr
	}

	schema.relIndex = make(map[string]*RelationshipType)
	for i := range schema.RelationshipTypes {
		rel := &schema.RelationshipTypes[i]
		if strings.TrimSpace(rel.Name) == "" {
			rel.Name = rel.ID
		}
		schema.relIndex[strings.ToLower(rel.ID)] = rel
	}

	return &schema, nil
}

func validateSchema(s *Schema) error {
	if s.Version != 1 {
		return fmt.Errorf("unsupported version: %d", s.Version)
	}

	attrNames := make(map[string]struct{})
	for i, attr := range s.Attributes {
		name := strings.TrimSpace(attr.Name)
		if name == "" {
			return fmt.Errorf("attribute %d name is required", i)
		}
		if strings.HasPrefix(name, "$") {
			return fmt.Errorf("attribute %s: names starting with $ are reserved", name)
		}
		if _, exists := attrNames[name]; exists {
			return fmt.Errorf("duplicate attribute: %s", name)
		}
		attrNames[name] = struct{}{}

		switch strings.ToLower(attr.Type) {
		case TypeString, TypeNumber, TypeBoolean, TypeTimestamp, TypeTimespan:
		case TypeEnum:
			if len(attr.Values) == 0 {
				return fmt.Errorf("attribute %s enum has no values", name)
			}
		default:
			return fmt.Errorf("attribute %s has unknown type %q", name, attr.Type)
		}
		for _, kind := range attr.AppliesTo {
			switch kind {
			case "character", "thing", "relationship":
			default:
				return fmt.Errorf("attribute %s applies to unknown kind %q", name, kind)
			}
		}
	}

	relIDs := make(map[string]struct{})
	for i, rel := range s.RelationshipTypes {
		if strings.TrimSpace(rel.ID) == "" {
			return fmt.Errorf("relationship type %d id is required", i)
		}
		key := strings.ToLower(rel.ID)
		if _, exists := relIDs[key]; exists {
			return fmt.Errorf("duplicate relationship type id: %s", rel.ID)
		}
		relIDs[key] = struct{}{}
	}

	return nil
}

func (s *Schema) Attribute(name string) (*Attribute, bool) {
	if s == nil {
		return nil, false
	}
	attr, ok := s.attrIndex[name]
	return attr, ok
}

// RelationshipType looks a type up by ID, case-insensitively.
func (s *Schema) RelationshipType(id string) (*RelationshipType, bool) {
	if s == nil {
		return nil, false
	}
	rel, ok := s.relIndex[strings.ToLower(id)]
	return rel, ok
}

func (s *Schema) IsValidRelationshipType(id string) bool {
	_, ok := s.RelationshipType(id)
	return ok
}

// NodeName returns the display name of a relationship type, or the ID
// itself when the schema does not know it.
func (s *Schema) NodeName(_ context.Context, nodeID string) (string, error) {
	if rel, ok := s.RelationshipType(nodeID); ok {
		return rel.Name, nil
	}
	return nodeID, nil
}

// AppliesToKind reports whether the attribute is meant for the given kind.
func (a *Attribute) AppliesToKind(kind string) bool {
	if len(a.AppliesTo) == 0 {
		return true
	}
	for _, k := range a.AppliesTo {
		if k == kind {
			return true
		}
	}
	return false
}

// CheckValue reports whether v, as decoded from JSON, fits the attribute's
// declared type. A nil value clears the attribute and always fits.
func (a *Attribute) CheckValue(v any) error {
	if v == nil {
		return nil
	}
	switch strings.ToLower(a.Type) {
	case TypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%s expects a string, got %T", a.Name, v)
		}
	case TypeNumber, TypeTimespan:
		if _, ok := v.(float64); !ok {
			return fmt.Errorf("%s expects a number, got %T", a.Name, v)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%s expects a boolean, got %T", a.Name, v)
		}
	case TypeTimestamp:
		switch t := v.(type) {
		case float64:
		case string:
			if _, err := time.Parse(time.RFC3339, t); err != nil {
				return fmt.Errorf("%s expects an RFC 3339 timestamp: %w", a.Name, err)
			}
		default:
			return fmt.Errorf("%s expects a timestamp, got %T", a.Name, v)
		}
	case TypeEnum:
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("%s expects one of %v, got %T", a.Name, a.Values, v)
		}
		for _, allowed := range a.Values {
			if strings.EqualFold(allowed, str) {
				return nil
			}
		}
		return fmt.Errorf("%s expects one of %v, got %q", a.Name, a.Values, str)
	}
	return nil
}
