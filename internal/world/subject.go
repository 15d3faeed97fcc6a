package world

import (
	"context"
	"errors"
	"time"

	"worldline/internal/id"
	"worldline/internal/store"
)

// Subject is anything that carries attributes and has a lifecycle: a
// character, a thing or a relationship. Exactly one of Entity and
// Relationship is set unless Kind is id.KindUnknown.
type Subject struct {
	Kind         id.Kind
	Entity       *Entity
	Relationship *Relationship
}

func (s Subject) ID() string {
	switch {
	case s.Entity != nil:
		return s.Entity.ID
	case s.Relationship != nil:
		return s.Relationship.ID
	}
	return ""
}

func (s Subject) Name() string {
	switch {
	case s.Entity != nil:
		return s.Entity.Name
	case s.Relationship != nil:
		return s.Relationship.Name
	}
	return ""
}

func (s Subject) EndEventID() string {
	switch {
	case s.Entity != nil:
		return s.Entity.EndEventID
	case s.Relationship != nil:
		return s.Relationship.EndEventID
	}
	return ""
}

func (s Subject) Deleted() bool {
	switch {
	case s.Entity != nil:
		return s.Entity.DeletedAt != nil
	case s.Relationship != nil:
		return s.Relationship.DeletedAt != nil
	}
	return false
}

// withEnd returns the record of s with its end event and update time set.
func (s Subject) withEnd(worldID, endEventID string, now time.Time) (store.Item, error) {
	if s.Entity != nil {
		e := *s.Entity
		e.EndEventID = endEventID
		e.UpdatedAt = now
		return record(worldID, e.ID, &e)
	}
	r := *s.Relationship
	r.EndEventID = endEventID
	r.UpdatedAt = now
	return record(worldID, r.ID, &r)
}

func (s Subject) withDeleted(worldID string, now time.Time) (store.Item, error) {
	if s.Entity != nil {
		e := *s.Entity
		e.DeletedAt = &now
		e.UpdatedAt = now
		return record(worldID, e.ID, &e)
	}
	r := *s.Relationship
	r.DeletedAt = &now
	r.UpdatedAt = now
	return record(worldID, r.ID, &r)
}

// resolve dispatches on the ID prefix and loads the matching record. An
// unrecognised prefix yields a Subject of kind id.KindUnknown and no error;
// a recognised prefix with no stored record yields an error wrapping
// store.ErrNotFound. The raw stored bytes are returned for conditional
// writes.
func (s *Service) resolve(ctx context.Context, worldID, subjectID string) (Subject, []byte, error) {
	switch kind := id.KindOf(subjectID); kind {
	case id.KindCharacter, id.KindThing:
		e, raw, err := s.loadEntity(ctx, worldID, subjectID)
		if err != nil {
			return Subject{}, nil, err
		}
		return Subject{Kind: kind, Entity: e}, raw, nil
	case id.KindRelationship:
		r, raw, err := s.loadRelationship(ctx, worldID, subjectID)
		if err != nil {
			return Subject{}, nil, err
		}
		return Subject{Kind: kind, Relationship: r}, raw, nil
	default:
		return Subject{Kind: id.KindUnknown}, nil, nil
	}
}

// requireSubject resolves a subject that an operation acts on directly,
// mapping absence to NotFound.
func (s *Service) requireSubject(ctx context.Context, worldID, subjectID string, accept func(id.Kind) bool) (Subject, []byte, error) {
	subj, raw, err := s.resolve(ctx, worldID, subjectID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && (subj.Kind == id.KindUnknown || !accept(subj.Kind))) {
		return Subject{}, nil, notFound(kindLabel(id.KindOf(subjectID)), subjectID)
	}
	if err != nil {
		return Subject{}, nil, err
	}
	return subj, raw, nil
}

func isEntityKind(k id.Kind) bool       { return k.IsEntity() }
func isRelationshipKind(k id.Kind) bool { return k == id.KindRelationship }
func isSubjectKind(k id.Kind) bool      { return k.IsEntity() || k == id.KindRelationship }

func kindLabel(k id.Kind) string {
	if k == id.KindUnknown {
		return "record"
	}
	return k.String()
}
