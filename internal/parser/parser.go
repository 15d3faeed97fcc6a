// Package parser reads lore files: markdown with a yaml frontmatter block
// declaring a character, thing or event.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is one lore file. Times are on the world timeline; Born, Died
// and Time are nil when the frontmatter leaves them out.
type Document struct {
	Title         string
	Kind          string
	Description   string
	Tags          []string
	Born          *int64
	Died          *int64
	Time          *int64
	Duration      int64
	Impacts       []Impact
	Relationships []Link
	Body          string
	SourceFile    string
}

// Impact is one attribute change declared by an event. Entity is a title.
type Impact struct {
	Entity    string
	Attribute string
	Value     any
}

// Link is a relationship declared on an entity, pointing at another entity
// by title.
type Link struct {
	To   string
	Type string
	Time int64
}

var (
	ErrNoFrontmatter = errors.New("no frontmatter found")
	ErrInvalidYAML   = errors.New("invalid YAML in frontmatter")
	ErrMissingTitle  = errors.New("frontmatter missing required 'title' field")
	ErrMissingKind   = errors.New("frontmatter missing required 'kind' field")
)

type frontmatter struct {
	Title         string       `yaml:"title"`
	Kind          string       `yaml:"kind"`
	Description   string       `yaml:"description"`
	Tags          list[tag]    `yaml:"tags"`
	Born          *whole       `yaml:"born"`
	Died          *whole       `yaml:"died"`
	Time          *whole       `yaml:"time"`
	Duration      whole        `yaml:"duration"`
	Impacts       list[impact] `yaml:"impacts"`
	Relationships list[link]   `yaml:"relationships"`
}

type impact struct {
	Entity    string `yaml:"entity"`
	Attribute string `yaml:"attribute"`
	Value     any    `yaml:"value"`
}

type link struct {
	To   string `yaml:"to"`
	Type string `yaml:"type"`
	Time whole  `yaml:"time"`
}

func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.SourceFile = path
	return doc, nil
}

func Parse(content []byte) (*Document, error) {
	head, body, ok := split(content)
	if !ok {
		return nil, ErrNoFrontmatter
	}

	var fm frontmatter
	if err := yaml.Unmarshal(head, &fm); err != nil {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("frontmatter: %w", err)
		}
		return nil, ErrInvalidYAML
	}

	title := strings.TrimSpace(fm.Title)
	if title == "" {
		return nil, ErrMissingTitle
	}
	kind := strings.ToLower(strings.TrimSpace(fm.Kind))
	if kind == "" {
		return nil, ErrMissingKind
	}

	doc := &Document{
		Title:       title,
		Kind:        kind,
		Description: strings.TrimSpace(fm.Description),
		Born:        fm.Born.ptr(),
		Died:        fm.Died.ptr(),
		Time:        fm.Time.ptr(),
		Duration:    int64(fm.Duration),
		Body:        body,
	}
	for _, t := range fm.Tags {
		if s := strings.TrimSpace(string(t)); s != "" {
			doc.Tags = append(doc.Tags, s)
		}
	}
	for i, im := range fm.Impacts {
		entity, attribute := strings.TrimSpace(im.Entity), strings.TrimSpace(im.Attribute)
		if entity == "" || attribute == "" {
			return nil, fmt.Errorf("impact %d missing entity or attribute", i)
		}
		doc.Impacts = append(doc.Impacts, Impact{Entity: entity, Attribute: attribute, Value: im.Value})
	}
	for i, l := range fm.Relationships {
		to, relType := strings.TrimSpace(l.To), strings.TrimSpace(l.Type)
		if to == "" || relType == "" {
			return nil, fmt.Errorf("relationship %d missing to or type", i)
		}
		doc.Relationships = append(doc.Relationships, Link{To: to, Type: relType, Time: int64(l.Time)})
	}
	return doc, nil
}

// split returns the yaml between the opening and closing "---" lines and
// the trimmed body after them.
func split(content []byte) (head []byte, body string, ok bool) {
	trimmed := bytes.TrimLeft(content, "\ufeff\n\r\t ")
	if !bytes.HasPrefix(trimmed, []byte("---\n")) {
		return nil, "", false
	}
	rest := trimmed[len("---\n"):]

	if bytes.HasPrefix(rest, []byte("---\n")) || bytes.Equal(rest, []byte("---")) {
		return nil, strings.TrimSpace(string(rest[3:])), true
	}
	end := bytes.Index(rest, []byte("\n---\n"))
	if end == -1 {
		if !bytes.HasSuffix(rest, []byte("\n---")) {
			return nil, "", false
		}
		return rest[:len(rest)-3], "", true
	}
	return rest[:end+1], strings.TrimSpace(string(rest[end+len("\n---\n"):])), true
}

// list accepts a single item where a sequence is expected.
type list[T any] []T

func (l *list[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		var one T
		if err := node.Decode(&one); err != nil {
			return err
		}
		*l = list[T]{one}
		return nil
	}
	var many []T
	if err := node.Decode(&many); err != nil {
		return err
	}
	*l = many
	return nil
}

type tag string

func (t *tag) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!str" {
		return typeError(node, "tags must be strings")
	}
	*t = tag(node.Value)
	return nil
}

// whole is a yaml integer; floats are rejected rather than truncated.
type whole int64

func (w *whole) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!int" {
		return typeError(node, fmt.Sprintf("%q is not a whole number", node.Value))
	}
	var v int64
	if err := node.Decode(&v); err != nil {
		return err
	}
	*w = whole(v)
	return nil
}

func (w *whole) ptr() *int64 {
	if w == nil {
		return nil
	}
	v := int64(*w)
	return &v
}

func typeError(node *yaml.Node, msg string) error {
	return &yaml.TypeError{Errors: []string{fmt.Sprintf("line %d: %s", node.Line, msg)}}
}
