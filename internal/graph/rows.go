package graph

import (
	"strings"

	"worldline/internal/world"
)

// nodeRow flattens an entity and its current state into node properties.
// Attribute values that neo4j cannot store as a property (maps, mixed
// lists) are left out. System attributes keep their name without the $.
func nodeRow(e world.Entity, state map[string]any) map[string]any {
	props := map[string]any{
		"name":        e.Name,
		"description": e.Description,
		"ended":       e.EndEventID != "",
	}
	for key, value := range state {
		v, ok := propertyValue(value)
		if !ok {
			continue
		}
		if world.IsSystemAttribute(key) {
			props[strings.TrimPrefix(key, "$")] = v
			continue
		}
		props["attr_"+key] = v
	}
	return map[string]any{"id": e.ID, "world_id": e.WorldID, "props": props}
}

func edgeRow(r world.Relationship, typeName string) map[string]any {
	return map[string]any{
		"id":    r.ID,
		"from":  r.FromID,
		"to":    r.ToID,
		"type":  r.TypeID,
		"label": typeName,
		"name":  r.Name,
		"ended": r.EndEventID != "",
	}
}

func propertyValue(value any) (any, bool) {
	switch v := value.(type) {
	case string, bool, float64, int64:
		return v, true
	case int:
		return int64(v), true
	case []any:
		strs := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			strs = append(strs, s)
		}
		return strs, true
	default:
		return nil, false
	}
}
