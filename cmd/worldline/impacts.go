package main

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"worldline/internal/world"
)

// parseImpacts reads --set and --rel-set flags into a StateImpact.
//
//	--set chr_X.mood=calm
//	--rel-set rel_X:to_from.trust=3
//
// Values are parsed as yaml scalars, so numbers and booleans keep their type.
func parseImpacts(sets, relSets []string) (world.StateImpact, error) {
	var si world.StateImpact
	for _, raw := range sets {
		subject, attribute, value, err := splitAssignment(raw)
		if err != nil {
			return si, err
		}
		si.AttributeChanges = append(si.AttributeChanges, world.AttributeChange{
			EntityID:  subject,
			Attribute: attribute,
			Value:     value,
		})
	}
	for _, raw := range relSets {
		subject, attribute, value, err := splitAssignment(raw)
		if err != nil {
			return si, err
		}
		relID, dir, ok := strings.Cut(subject, ":")
		if !ok {
			return si, fmt.Errorf("relationship change %q: expected rel_ID:direction.attribute=value", raw)
		}
		si.RelationshipAttributeChanges = append(si.RelationshipAttributeChanges, world.RelationshipAttributeChange{
			RelationshipID: relID,
			Attribute:      attribute,
			Direction:      world.Direction(dir),
			Value:          value,
		})
	}
	return si, nil
}

func splitAssignment(raw string) (subject, attribute string, value any, err error) {
	lhs, rhs, ok := strings.Cut(raw, "=")
	if !ok {
		return "", "", nil, fmt.Errorf("change %q: missing =", raw)
	}
	subject, attribute, ok = strings.Cut(strings.TrimSpace(lhs), ".")
	if !ok || subject == "" || attribute == "" {
		return "", "", nil, fmt.Errorf("change %q: expected subject.attribute=value", raw)
	}
	if err := yaml.Unmarshal([]byte(rhs), &value); err != nil {
		return "", "", nil, fmt.Errorf("change %q: %w", raw, err)
	}
	if value == nil {
		value = ""
	}
	return subject, attribute, value, nil
}
