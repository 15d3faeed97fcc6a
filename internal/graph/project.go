package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"worldline/internal/id"
	"worldline/internal/world"
)

// Source is the read side of the engine a projection is built from.
type Source interface {
	ListEntities(ctx context.Context, worldID string, kind id.Kind) ([]world.Entity, error)
	ListRelationships(ctx context.Context, worldID string) ([]world.Relationship, error)
	ComputeState(ctx context.Context, worldID, entityID string, asOf int64) (*world.State, error)
}

type ProjectResult struct {
	Nodes   int
	Edges   int
	Removed int64
}

// Project replaces the world's graph with its state as of asOf. Soft-deleted
// entities and relationships are left out, and nodes that are no longer in
// the world are removed.
func (c *Client) Project(ctx context.Context, src Source, names world.NameResolver, worldID string, asOf int64) (*ProjectResult, error) {
	nodes := make(map[string][]map[string]any)
	keep := []string{}
	for _, kind := range []id.Kind{id.KindCharacter, id.KindThing} {
		entities, err := src.ListEntities(ctx, worldID, kind)
		if err != nil {
			return nil, fmt.Errorf("listing %ss: %w", kind, err)
		}
		label := nodeLabel(kind)
		for _, e := range entities {
			if e.DeletedAt != nil {
				continue
			}
			st, err := src.ComputeState(ctx, worldID, e.ID, asOf)
			if err != nil {
				return nil, fmt.Errorf("computing state of %s: %w", e.ID, err)
			}
			nodes[label] = append(nodes[label], nodeRow(e, st.Attributes))
			keep = append(keep, e.ID)
		}
	}

	rels, err := src.ListRelationships(ctx, worldID)
	if err != nil {
		return nil, fmt.Errorf("listing relationships: %w", err)
	}
	edges := make([]map[string]any, 0, len(rels))
	for _, r := range rels {
		if r.DeletedAt != nil {
			continue
		}
		typeName, err := names.NodeName(ctx, r.TypeID)
		if err != nil {
			return nil, fmt.Errorf("resolving relationship type %s: %w", r.TypeID, err)
		}
		edges = append(edges, edgeRow(r, typeName))
	}

	res := &ProjectResult{}
	for label, rows := range nodes {
		if _, err := c.write(ctx, mergeNodesQuery(label), map[string]any{"rows": rows}); err != nil {
			return nil, fmt.Errorf("upserting %s nodes: %w", label, err)
		}
		res.Nodes += len(rows)
	}

	if _, err := c.write(ctx, `
		MATCH (:Entity {world_id: $world_id})-[r:RELATES]->(:Entity)
		DELETE r`, map[string]any{"world_id": worldID}); err != nil {
		return nil, fmt.Errorf("clearing edges: %w", err)
	}
	if len(edges) > 0 {
		if _, err := c.write(ctx, `
			UNWIND $rows AS row
			MATCH (a:Entity {id: row.from}), (b:Entity {id: row.to})
			CREATE (a)-[r:RELATES {id: row.id}]->(b)
			SET r.type = row.type, r.label = row.label, r.name = row.name, r.ended = row.ended`,
			map[string]any{"rows": edges}); err != nil {
			return nil, fmt.Errorf("creating edges: %w", err)
		}
		res.Edges = len(edges)
	}

	removed, err := c.write(ctx, `
		MATCH (e:Entity {world_id: $world_id})
		WHERE NOT e.id IN $keep
		DETACH DELETE e
		RETURN count(*) AS removed`, map[string]any{"world_id": worldID, "keep": keep})
	if err != nil {
		return nil, fmt.Errorf("removing stale nodes: %w", err)
	}
	res.Removed = removed

	return res, nil
}

// Drop removes every node projected for the world.
func (c *Client) Drop(ctx context.Context, worldID string) (int64, error) {
	removed, err := c.write(ctx, `
		MATCH (e:Entity {world_id: $world_id})
		DETACH DELETE e
		RETURN count(*) AS removed`, map[string]any{"world_id": worldID})
	if err != nil {
		return 0, fmt.Errorf("dropping world %s: %w", worldID, err)
	}
	return removed, nil
}

// Neighbour is an entity reachable from another through the projection.
type Neighbour struct {
	ID    string
	Name  string
	Hops  int64
	Via   []string
	Ended bool
}

// Neighbours walks RELATES edges in either direction up to depth hops.
func (c *Client) Neighbours(ctx context.Context, entityID string, depth int) ([]Neighbour, error) {
	if depth < 1 {
		depth = 1
	}
	query := fmt.Sprintf(`
		MATCH p = (start:Entity {id: $id})-[:RELATES*1..%d]-(other:Entity)
		WHERE other.id <> $id
		WITH other, min(length(p)) AS hops, collect(p)[0] AS path
		RETURN other.id AS id, other.name AS name, hops,
		       [r IN relationships(path) | r.name] AS via, other.ended AS ended
		ORDER BY hops, name`, depth)

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": entityID})
		if err != nil {
			return nil, err
		}
		var out []Neighbour
		for res.Next(ctx) {
			rec := res.Record()
			n := Neighbour{}
			if v, ok := rec.Get("id"); ok {
				n.ID, _ = v.(string)
			}
			if v, ok := rec.Get("name"); ok {
				n.Name, _ = v.(string)
			}
			if v, ok := rec.Get("hops"); ok {
				n.Hops, _ = v.(int64)
			}
			if v, ok := rec.Get("ended"); ok {
				n.Ended, _ = v.(bool)
			}
			if v, ok := rec.Get("via"); ok {
				n.Via = toStrings(v)
			}
			out = append(out, n)
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("walking neighbours of %s: %w", entityID, err)
	}
	neighbours, _ := result.([]Neighbour)
	return neighbours, nil
}

func mergeNodesQuery(label string) string {
	return fmt.Sprintf(`
		UNWIND $rows AS row
		MERGE (e:Entity {id: row.id})
		SET e:%s, e.world_id = row.world_id
		SET e += row.props`, label)
}

func nodeLabel(kind id.Kind) string {
	switch kind {
	case id.KindCharacter:
		return "Character"
	case id.KindThing:
		return "Thing"
	default:
		return "Entity"
	}
}

func toStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
