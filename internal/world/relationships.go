package world

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"worldline/internal/id"
	"worldline/internal/keyspace"
	"worldline/internal/store"
	"worldline/internal/worlderr"
)

type RelationshipInput struct {
	FromID      string
	ToID        string
	TypeID      string
	Description string
	// Time is the story time of the synthesized establishment event.
	Time    int64
	Content string
}

// CreateRelationship writes a relationship between two live entities, the
// reverse rows in both endpoint partitions, and an establishment event that
// sets $age, $name and $alive in both directions.
func (s *Service) CreateRelationship(ctx context.Context, worldID string, in RelationshipInput) (*Relationship, *Event, error) {
	defer observe("create_relationship")()

	if strings.TrimSpace(in.TypeID) == "" {
		return nil, nil, invalidInput("relationship type is required")
	}
	if in.FromID == in.ToID {
		return nil, nil, worlderr.New(worlderr.KindCyclicOrInvalidReference).
			With("entity_id", in.FromID).
			Errorf("relationship cannot connect %s to itself", in.FromID)
	}
	if _, _, err := s.requireWorld(ctx, worldID); err != nil {
		return nil, nil, err
	}

	var from, to *Entity
	var typeName string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		from, err = s.endpoint(gctx, worldID, in.FromID, "fromId")
		return err
	})
	g.Go(func() error {
		var err error
		to, err = s.endpoint(gctx, worldID, in.ToID, "toId")
		return err
	})
	g.Go(func() error {
		name, err := s.names.NodeName(gctx, in.TypeID)
		if err != nil {
			return fmt.Errorf("resolving relationship type %s: %w", in.TypeID, err)
		}
		typeName = name
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	now := s.now()
	r := &Relationship{
		ID:          id.New(id.KindRelationship),
		WorldID:     worldID,
		FromID:      from.ID,
		ToID:        to.ID,
		TypeID:      in.TypeID,
		Name:        CompositeName(from.Name, typeName, to.Name),
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	content := in.Content
	if content == "" {
		content = r.Name + " began"
	}
	var changes []RelationshipAttributeChange
	for _, dir := range []Direction{FromTo, ToFrom} {
		changes = append(changes,
			RelationshipAttributeChange{RelationshipID: r.ID, Attribute: AttrAge, Direction: dir, Value: 0},
			RelationshipAttributeChange{RelationshipID: r.ID, Attribute: AttrName, Direction: dir, Value: r.Name},
			RelationshipAttributeChange{RelationshipID: r.ID, Attribute: AttrAlive, Direction: dir, Value: true},
		)
	}
	establish := &Event{
		ID:        id.New(id.KindEvent),
		WorldID:   worldID,
		Time:      in.Time,
		Content:   content,
		Impacts:   StateImpact{RelationshipAttributeChanges: changes},
		System:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var writes []store.Write
	relRow, err := putRecord(worldID, keyspace.EntityKey(r.ID), r)
	if err != nil {
		return nil, nil, err
	}
	writes = append(writes, relRow)
	for _, endpoint := range []string{r.FromID, r.ToID} {
		ref, err := putRecord(endpoint, keyspace.RelationshipRefKey(r.ID), relationshipRef{RelationshipID: r.ID})
		if err != nil {
			return nil, nil, err
		}
		writes = append(writes, ref)
	}
	eventRows, err := eventWrites(establish)
	if err != nil {
		return nil, nil, err
	}
	if err := s.writeAll(ctx, "create relationship", append(writes, eventRows...)); err != nil {
		return nil, nil, err
	}

	s.log.Info("relationship created",
		zap.String("world_id", worldID),
		zap.String("relationship_id", r.ID),
		zap.String("name", r.Name))
	return r, establish, nil
}

// CompositeName builds a relationship's display name from its endpoints
// and type.
func CompositeName(from, typeName, to string) string {
	return fmt.Sprintf("%s -[%s]-> %s", from, typeName, to)
}

func (s *Service) endpoint(ctx context.Context, worldID, entityID, field string) (*Entity, error) {
	if !id.KindOf(entityID).IsEntity() {
		return nil, worlderr.New(worlderr.KindReferenceNotFound).
			With("entity_id", entityID, "field", field).
			Errorf("%s: %q is not a character or thing", field, entityID)
	}
	e, _, err := s.loadEntity(ctx, worldID, entityID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, worlderr.New(worlderr.KindReferenceNotFound).
			With("entity_id", entityID, "field", field).
			Errorf("%s: %s does not exist in world %s", field, entityID, worldID)
	}
	if err != nil {
		return nil, err
	}
	if e.DeletedAt != nil {
		return nil, worlderr.New(worlderr.KindReferenceDeleted).
			With("entity_id", entityID, "field", field).
			Errorf("%s: %s %q has been deleted", field, entityID, e.Name)
	}
	return e, nil
}

func (s *Service) GetRelationship(ctx context.Context, worldID, relID string) (*Relationship, error) {
	subj, _, err := s.requireSubject(ctx, worldID, relID, isRelationshipKind)
	if err != nil {
		return nil, err
	}
	return subj.Relationship, nil
}

// ListRelationships returns every relationship in the world.
func (s *Service) ListRelationships(ctx context.Context, worldID string) ([]Relationship, error) {
	items, err := s.db.ScanPrefix(ctx, worldID, id.KindRelationship.Prefix()+"_", store.ScanOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]Relationship, 0, len(items))
	for _, it := range items {
		var r Relationship
		if err := json.Unmarshal(it.Data, &r); err != nil {
			return nil, fmt.Errorf("decoding relationship %s: %w", it.SortKey, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// ListRelationshipsByEntity returns relationships where the entity is
// either endpoint, through the entity's reverse rows.
func (s *Service) ListRelationshipsByEntity(ctx context.Context, worldID, entityID string) ([]Relationship, error) {
	if _, _, err := s.requireSubject(ctx, worldID, entityID, isEntityKind); err != nil {
		return nil, err
	}
	refs, err := s.db.ScanPrefix(ctx, entityID, keyspace.RelationshipRef, store.ScanOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]Relationship, 0, len(refs))
	for _, ref := range refs {
		relID := strings.TrimPrefix(ref.SortKey, keyspace.RelationshipRef)
		r, _, err := s.loadRelationship(ctx, worldID, relID)
		if errors.Is(err, store.ErrNotFound) {
			s.log.Warn("dangling relationship reference",
				zap.String("entity_id", entityID),
				zap.String("relationship_id", relID))
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// EndRelationship records the dissolution of a relationship.
func (s *Service) EndRelationship(ctx context.Context, worldID, relID string, in EndInput) (*Event, error) {
	defer observe("end_relationship")()
	return s.endSubject(ctx, worldID, relID, isRelationshipKind, in)
}

func (s *Service) UndoEndRelationship(ctx context.Context, worldID, relID string) error {
	defer observe("undo_end_relationship")()
	return s.undoEndSubject(ctx, worldID, relID, isRelationshipKind)
}

// DeleteRelationship soft-deletes a relationship.
func (s *Service) DeleteRelationship(ctx context.Context, worldID, relID string) error {
	defer observe("delete_relationship")()
	return s.softDelete(ctx, worldID, relID, isRelationshipKind)
}
