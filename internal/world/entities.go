package world

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"worldline/internal/id"
	"worldline/internal/keyspace"
	"worldline/internal/store"
	"worldline/internal/worlderr"
)

type EntityInput struct {
	Kind        id.Kind
	Name        string
	Description string
	NodeID      string
	// BirthTime is the story time of the synthesized birth event.
	BirthTime    int64
	BirthContent string
}

type EntityPatch struct {
	Name        *string
	Description *string
	NodeID      *string
}

// CreateEntity writes a character or thing and its birth event, which sets
// $age to 0, $name to the entity name and $alive to true.
func (s *Service) CreateEntity(ctx context.Context, worldID string, in EntityInput) (*Entity, *Event, error) {
	defer observe("create_entity")()

	if !in.Kind.IsEntity() {
		return nil, nil, invalidInput("entity kind must be character or thing, got %s", in.Kind)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, nil, invalidInput("entity name is required")
	}
	if _, _, err := s.requireWorld(ctx, worldID); err != nil {
		return nil, nil, err
	}

	now := s.now()
	e := &Entity{
		ID:          id.New(in.Kind),
		WorldID:     worldID,
		Name:        in.Name,
		Description: in.Description,
		NodeID:      in.NodeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	content := in.BirthContent
	if content == "" {
		content = birthContent(in.Kind, in.Name)
	}
	birth := &Event{
		ID:      id.New(id.KindEvent),
		WorldID: worldID,
		Time:    in.BirthTime,
		Content: content,
		Impacts: StateImpact{AttributeChanges: []AttributeChange{
			{EntityID: e.ID, Attribute: AttrAge, Value: 0},
			{EntityID: e.ID, Attribute: AttrName, Value: in.Name},
			{EntityID: e.ID, Attribute: AttrAlive, Value: true},
		}},
		System:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	entityRow, err := putRecord(worldID, keyspace.EntityKey(e.ID), e)
	if err != nil {
		return nil, nil, err
	}
	eventRows, err := eventWrites(birth)
	if err != nil {
		return nil, nil, err
	}
	if err := s.writeAll(ctx, "create entity", append([]store.Write{entityRow}, eventRows...)); err != nil {
		return nil, nil, err
	}

	s.log.Info("entity created",
		zap.String("world_id", worldID),
		zap.String("entity_id", e.ID),
		zap.Int64("birth_time", in.BirthTime))
	return e, birth, nil
}

func (s *Service) GetEntity(ctx context.Context, worldID, entityID string) (*Entity, error) {
	subj, _, err := s.requireSubject(ctx, worldID, entityID, isEntityKind)
	if err != nil {
		return nil, err
	}
	return subj.Entity, nil
}

// ListEntities returns the world's entities of one kind, soft-deleted ones
// included, in creation order.
func (s *Service) ListEntities(ctx context.Context, worldID string, kind id.Kind) ([]Entity, error) {
	if !kind.IsEntity() {
		return nil, invalidInput("entity kind must be character or thing, got %s", kind)
	}
	items, err := s.db.ScanPrefix(ctx, worldID, kind.Prefix()+"_", store.ScanOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]Entity, 0, len(items))
	for _, it := range items {
		var e Entity
		if err := json.Unmarshal(it.Data, &e); err != nil {
			return nil, fmt.Errorf("decoding entity %s: %w", it.SortKey, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// UpdateEntity edits static fields only.
func (s *Service) UpdateEntity(ctx context.Context, worldID, entityID string, patch EntityPatch) (*Entity, error) {
	defer observe("update_entity")()

	subj, _, err := s.requireSubject(ctx, worldID, entityID, isEntityKind)
	if err != nil {
		return nil, err
	}
	e := subj.Entity
	if e.DeletedAt != nil {
		return nil, worlderr.New(worlderr.KindReferenceDeleted).
			With("entity_id", entityID).
			Errorf("%s %q has been deleted", entityID, e.Name)
	}
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, invalidInput("entity name is required")
		}
		e.Name = *patch.Name
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.NodeID != nil {
		e.NodeID = *patch.NodeID
	}
	e.UpdatedAt = s.now()

	row, err := record(worldID, keyspace.EntityKey(e.ID), e)
	if err != nil {
		return nil, err
	}
	if err := s.db.Put(ctx, row); err != nil {
		return nil, fmt.Errorf("updating entity %s: %w", entityID, err)
	}
	return e, nil
}

// EndEntity records the death of a character or the destruction of a thing.
func (s *Service) EndEntity(ctx context.Context, worldID, entityID string, in EndInput) (*Event, error) {
	defer observe("end_entity")()
	return s.endSubject(ctx, worldID, entityID, isEntityKind, in)
}

func (s *Service) UndoEndEntity(ctx context.Context, worldID, entityID string) error {
	defer observe("undo_end_entity")()
	return s.undoEndSubject(ctx, worldID, entityID, isEntityKind)
}

// DeleteEntity soft-deletes a character or thing.
func (s *Service) DeleteEntity(ctx context.Context, worldID, entityID string) error {
	defer observe("delete_entity")()
	return s.softDelete(ctx, worldID, entityID, isEntityKind)
}

func birthContent(kind id.Kind, name string) string {
	if kind == id.KindCharacter {
		return name + " was born"
	}
	return name + " came into being"
}
