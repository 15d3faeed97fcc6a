package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"worldline/internal/world"
)

var jsonOutput bool

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAttributes(out io.Writer, attrs map[string]any) {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "  %s: %v\n", key, attrs[key])
	}
}

func printEvent(out io.Writer, ev *world.Event) {
	marker := ""
	if ev.System {
		marker = fmt.Sprintf(" [%s]", world.Classify(ev))
	}
	fmt.Fprintf(out, "%s  t=%d", ev.ID, ev.Time)
	if ev.Duration > 0 {
		fmt.Fprintf(out, "+%d", ev.Duration)
	}
	fmt.Fprintf(out, "%s  %s\n", marker, firstLine(ev.Content))
	for _, c := range ev.Impacts.AttributeChanges {
		fmt.Fprintf(out, "    %s.%s = %v\n", c.EntityID, c.Attribute, c.Value)
	}
	for _, c := range ev.Impacts.RelationshipAttributeChanges {
		fmt.Fprintf(out, "    %s[%s].%s = %v\n", c.RelationshipID, c.Direction, c.Attribute, c.Value)
	}
}

func printEntity(out io.Writer, e *world.Entity) {
	status := ""
	switch {
	case e.DeletedAt != nil:
		status = " (deleted)"
	case e.EndEventID != "":
		status = " (ended)"
	}
	fmt.Fprintf(out, "%s  %s%s\n", e.ID, e.Name, status)
}

func printRelationship(out io.Writer, r *world.Relationship) {
	status := ""
	switch {
	case r.DeletedAt != nil:
		status = " (deleted)"
	case r.EndEventID != "":
		status = " (ended)"
	}
	fmt.Fprintf(out, "%s  %s%s\n", r.ID, r.Name, status)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
