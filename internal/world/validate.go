package world

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"worldline/internal/id"
	"worldline/internal/store"
	"worldline/internal/worlderr"
)

// checkImpacts enforces referential integrity for every change in impacts,
// as of the owning event's time. Checks run in a fixed order per change:
// existence, soft deletion, the system-attribute gate, then the end-of-life
// boundary. Nothing is written.
func (s *Service) checkImpacts(ctx context.Context, worldID string, impacts StateImpact, eventTime int64, system bool) error {
	subjects := make(map[string]Subject)

	for i, ch := range impacts.AttributeChanges {
		where := fmt.Sprintf("attributeChanges[%d]", i)
		subj, err := s.checkRef(ctx, worldID, ch.EntityID, isEntityKind, subjects, where)
		if err != nil {
			return err
		}
		if err := s.checkChange(ctx, worldID, subj, ch.Attribute, eventTime, system, where); err != nil {
			return err
		}
	}

	for i, ch := range impacts.RelationshipAttributeChanges {
		where := fmt.Sprintf("relationshipAttributeChanges[%d]", i)
		if !ch.Direction.Valid() {
			return worlderr.New(worlderr.KindInvalidInput).
				With("relationship_id", ch.RelationshipID, "direction", string(ch.Direction)).
				Errorf("%s: direction %q must be %q or %q", where, ch.Direction, FromTo, ToFrom)
		}
		subj, err := s.checkRef(ctx, worldID, ch.RelationshipID, isRelationshipKind, subjects, where)
		if err != nil {
			return err
		}
		if err := s.checkChange(ctx, worldID, subj, ch.Attribute, eventTime, system, where); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) checkRef(ctx context.Context, worldID, ref string, accept func(id.Kind) bool, seen map[string]Subject, where string) (Subject, error) {
	if subj, ok := seen[ref]; ok {
		return subj, nil
	}
	subj, _, err := s.resolve(ctx, worldID, ref)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Subject{}, err
	}
	if err != nil || subj.Kind == id.KindUnknown || !accept(subj.Kind) {
		return Subject{}, worlderr.New(worlderr.KindReferenceNotFound).
			With("entity_id", ref).
			Errorf("%s: %s does not exist in world %s", where, ref, worldID)
	}
	if subj.Deleted() {
		return Subject{}, worlderr.New(worlderr.KindReferenceDeleted).
			With("entity_id", ref).
			Errorf("%s: %s %q has been deleted", where, ref, subj.Name())
	}
	seen[ref] = subj
	return subj, nil
}

func (s *Service) checkChange(ctx context.Context, worldID string, subj Subject, attribute string, eventTime int64, system bool, where string) error {
	if strings.TrimSpace(attribute) == "" {
		return worlderr.New(worlderr.KindInvalidInput).
			With("entity_id", subj.ID()).
			Errorf("%s: attribute name is required", where)
	}
	if IsSystemAttribute(attribute) && !system {
		return worlderr.New(worlderr.KindForbiddenSystemAttribute).
			With("entity_id", subj.ID(), "attribute", attribute).
			Errorf("%s: %s is a system attribute and cannot be set by an ordinary event", where, attribute)
	}
	if attribute == AttrAlive || subj.EndEventID() == "" {
		return nil
	}

	endAt, ok, err := s.endTime(ctx, worldID, subj)
	if err != nil {
		return err
	}
	// A dangling end reference is reported by the audit, not here.
	if ok && endAt <= eventTime {
		return worlderr.New(worlderr.KindEntityAlreadyEnded).
			With("entity_id", subj.ID(), "attribute", attribute, "time", eventTime, "end_time", endAt).
			Errorf("%s: %s %q ended at time %d; cannot change %s at time %d",
				where, subj.ID(), subj.Name(), endAt, attribute, eventTime)
	}
	return nil
}

// IsSystemAttribute reports whether only system events may write attribute.
func IsSystemAttribute(attribute string) bool {
	return strings.HasPrefix(attribute, systemAttrPrefix)
}
