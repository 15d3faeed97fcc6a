package world

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"worldline/internal/id"
	"worldline/internal/store"
	"worldline/internal/worlderr"
)

// EndInput describes a death, destruction or dissolution.
type EndInput struct {
	Time    int64
	Content string
	// CauseEventID, if set, links the end event to the event that caused it.
	CauseEventID string
}

func (s *Service) endSubject(ctx context.Context, worldID, subjectID string, accept func(id.Kind) bool, in EndInput) (*Event, error) {
	subj, raw, err := s.requireSubject(ctx, worldID, subjectID, accept)
	if err != nil {
		return nil, err
	}
	if subj.Deleted() {
		return nil, worlderr.New(worlderr.KindReferenceDeleted).
			With("entity_id", subjectID).
			Errorf("%s %q has been deleted", subjectID, subj.Name())
	}
	if subj.EndEventID() != "" {
		return nil, alreadyEnded(subj)
	}
	birth, err := s.birthEvent(ctx, worldID, subjectID)
	if err != nil {
		return nil, err
	}
	if birth != nil && in.Time <= birth.Time {
		return nil, worlderr.New(worlderr.KindInvalidLifecycleOrdering).
			With("entity_id", subjectID, "time", in.Time, "birth_time", birth.Time).
			Errorf("%s %q cannot end at time %d; it began at time %d", subjectID, subj.Name(), in.Time, birth.Time)
	}
	var cause *Event
	if in.CauseEventID != "" {
		if cause, err = s.getEvent(ctx, worldID, in.CauseEventID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	content := in.Content
	if content == "" {
		content = endContent(subj)
	}
	death := &Event{
		ID:        id.New(id.KindEvent),
		WorldID:   worldID,
		Time:      in.Time,
		Content:   content,
		System:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if subj.Relationship != nil {
		for _, dir := range []Direction{FromTo, ToFrom} {
			death.Impacts.RelationshipAttributeChanges = append(death.Impacts.RelationshipAttributeChanges,
				RelationshipAttributeChange{RelationshipID: subjectID, Attribute: AttrAlive, Direction: dir, Value: false})
		}
	} else {
		death.Impacts.AttributeChanges = []AttributeChange{{EntityID: subjectID, Attribute: AttrAlive, Value: false}}
	}

	writes, err := eventWrites(death)
	if err != nil {
		return nil, err
	}
	if cause != nil {
		linkRows, _, err := linkWrites(worldID, cause.ID, death.ID, "caused", now)
		if err != nil {
			return nil, err
		}
		writes = append(writes, linkRows...)
	}
	if err := s.writeAll(ctx, "end", writes); err != nil {
		return nil, err
	}

	if err := s.setEnd(ctx, worldID, subj, raw, death.ID, now); err != nil {
		if rbErr := s.removeEventRows(ctx, worldID, death); rbErr != nil {
			s.log.Warn("withdrawing end event", zap.String("event_id", death.ID), zap.Error(rbErr))
		}
		return nil, err
	}

	s.log.Info("subject ended",
		zap.String("world_id", worldID),
		zap.String("subject_id", subjectID),
		zap.String("event_id", death.ID),
		zap.Int64("time", in.Time))
	return death, nil
}

// setEnd writes the end back-reference only if the record is unchanged
// since it was read. Unrelated concurrent edits are re-read and retried; a
// concurrent end is reported as AlreadyEnded.
func (s *Service) setEnd(ctx context.Context, worldID string, subj Subject, raw []byte, endEventID string, now time.Time) error {
	const attempts = 3
	for range attempts {
		ended, err := subj.withEnd(worldID, endEventID, now)
		if err != nil {
			return err
		}
		err = s.db.CompareAndPut(ctx, ended, raw)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConditionFailed) {
			return fmt.Errorf("setting end event on %s: %w", subj.ID(), err)
		}
		fresh, freshRaw, err := s.resolve(ctx, worldID, subj.ID())
		if err != nil {
			return fmt.Errorf("re-reading %s: %w", subj.ID(), err)
		}
		if fresh.EndEventID() != "" {
			return alreadyEnded(fresh)
		}
		subj, raw = fresh, freshRaw
	}
	return worlderr.Errorf(worlderr.KindAlreadyEnded, "%s kept changing while being ended", subj.ID())
}

func (s *Service) undoEndSubject(ctx context.Context, worldID, subjectID string, accept func(id.Kind) bool) error {
	subj, raw, err := s.requireSubject(ctx, worldID, subjectID, accept)
	if err != nil {
		return err
	}
	if subj.EndEventID() == "" {
		return worlderr.New(worlderr.KindNotEnded).
			With("entity_id", subjectID).
			Errorf("%s %q has not ended", subjectID, subj.Name())
	}

	death, err := s.loadEvent(ctx, worldID, subj.EndEventID())
	if errors.Is(err, store.ErrNotFound) {
		// The end event is already gone; only the back-reference remains.
		cleared, err := subj.withEnd(worldID, "", s.now())
		if err != nil {
			return err
		}
		if err := s.db.CompareAndPut(ctx, cleared, raw); err != nil {
			if errors.Is(err, store.ErrConditionFailed) {
				return worlderr.Errorf(worlderr.KindNotEnded, "%s changed while undoing its end", subjectID)
			}
			return err
		}
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.removeEvent(ctx, worldID, death); err != nil {
		return err
	}

	s.log.Info("subject end undone",
		zap.String("world_id", worldID),
		zap.String("subject_id", subjectID),
		zap.String("event_id", death.ID))
	return nil
}

func (s *Service) softDelete(ctx context.Context, worldID, subjectID string, accept func(id.Kind) bool) error {
	subj, _, err := s.requireSubject(ctx, worldID, subjectID, accept)
	if err != nil {
		return err
	}
	if subj.Deleted() {
		return nil
	}
	row, err := subj.withDeleted(worldID, s.now())
	if err != nil {
		return err
	}
	if err := s.db.Put(ctx, row); err != nil {
		return fmt.Errorf("deleting %s: %w", subjectID, err)
	}
	s.log.Info("subject deleted", zap.String("world_id", worldID), zap.String("subject_id", subjectID))
	return nil
}

// birthEvent returns the subject's birth or establishment event, falling
// back to its earliest event. It returns nil if the subject has no events.
func (s *Service) birthEvent(ctx context.Context, worldID, subjectID string) (*Event, error) {
	events, err := s.subjectEvents(ctx, worldID, subjectID, nil)
	if err != nil {
		return nil, err
	}
	for i := range events {
		ev := &events[i]
		if Classify(ev) != ClassBirth {
			continue
		}
		for _, sid := range LifecycleSubjects(ev) {
			if sid == subjectID {
				return ev, nil
			}
		}
	}
	if len(events) > 0 {
		return &events[0], nil
	}
	return nil, nil
}

// endTime returns the time of the subject's end event, if it has one that
// still exists.
func (s *Service) endTime(ctx context.Context, worldID string, subj Subject) (int64, bool, error) {
	if subj.EndEventID() == "" {
		return 0, false, nil
	}
	ev, err := s.loadEvent(ctx, worldID, subj.EndEventID())
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return ev.Time, true, nil
}

// removeEvent deletes an event with its index rows and links, then clears
// the end back-reference on every subject a death event ended. A failure
// between the two leaves a dangling reference, which undoEnd and the
// lifecycle checks already treat as not ended.
func (s *Service) removeEvent(ctx context.Context, worldID string, ev *Event) error {
	if err := s.removeEventRows(ctx, worldID, ev); err != nil {
		return err
	}
	if Classify(ev) != ClassDeath {
		return nil
	}
	for _, sid := range LifecycleSubjects(ev) {
		if err := s.clearEnd(ctx, worldID, sid, ev.ID); err != nil {
			return err
		}
	}
	return nil
}

// clearEnd drops the end back-reference of a subject that still points at
// endEventID, with the same conditional write setEnd uses.
func (s *Service) clearEnd(ctx context.Context, worldID, subjectID, endEventID string) error {
	const attempts = 3
	for range attempts {
		subj, raw, err := s.resolve(ctx, worldID, subjectID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if subj.Kind == id.KindUnknown || subj.EndEventID() != endEventID {
			return nil
		}
		cleared, err := subj.withEnd(worldID, "", s.now())
		if err != nil {
			return err
		}
		err = s.db.CompareAndPut(ctx, cleared, raw)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConditionFailed) {
			return fmt.Errorf("clearing end event on %s: %w", subjectID, err)
		}
	}
	return fmt.Errorf("%s kept changing while its end was cleared", subjectID)
}

// removeEventRows deletes an event and its links without touching subject
// records.
func (s *Service) removeEventRows(ctx context.Context, worldID string, ev *Event) error {
	linkRows, err := s.linkDeletes(ctx, worldID, ev.ID)
	if err != nil {
		return err
	}
	eventRows, err := eventDeletes(ev)
	if err != nil {
		return err
	}
	return s.writeAll(ctx, "withdraw event", append(linkRows, eventRows...))
}

func alreadyEnded(subj Subject) error {
	return worlderr.New(worlderr.KindAlreadyEnded).
		With("entity_id", subj.ID(), "end_event_id", subj.EndEventID()).
		Errorf("%s %q has already ended", subj.ID(), subj.Name())
}

func endContent(subj Subject) string {
	switch subj.Kind {
	case id.KindCharacter:
		return subj.Name() + " died"
	case id.KindThing:
		return subj.Name() + " was destroyed"
	default:
		return subj.Name() + " ended"
	}
}
