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

type EventInput struct {
	Time     int64
	Duration int64
	PlaceID  string
	Content  string
	Impacts  StateImpact
}

// CreateEvent records an ordinary event after checking every impact
// against the world's current records.
func (s *Service) CreateEvent(ctx context.Context, worldID string, in EventInput) (*Event, error) {
	defer observe("create_event")()

	if _, _, err := s.requireWorld(ctx, worldID); err != nil {
		return nil, err
	}
	now := s.now()
	ev := &Event{
		ID:        id.New(id.KindEvent),
		WorldID:   worldID,
		Time:      in.Time,
		Duration:  in.Duration,
		PlaceID:   in.PlaceID,
		Content:   in.Content,
		Impacts:   in.Impacts,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := checkEventFields(ev); err != nil {
		return nil, err
	}
	if err := s.checkImpacts(ctx, worldID, ev.Impacts, ev.Time, false); err != nil {
		return nil, err
	}

	writes, err := eventWrites(ev)
	if err != nil {
		return nil, err
	}
	if err := s.writeAll(ctx, "create event", writes); err != nil {
		return nil, err
	}
	s.log.Debug("event created",
		zap.String("world_id", worldID),
		zap.String("event_id", ev.ID),
		zap.Int64("time", ev.Time))
	return ev, nil
}

func (s *Service) GetEvent(ctx context.Context, worldID, eventID string) (*Event, error) {
	return s.getEvent(ctx, worldID, eventID)
}

// UpdateEvent applies a patch subject to the event's lifecycle class. When
// the time or impacts change, the event's index rows are relocated: rows
// under the old keys are deleted and rows under the new keys written.
func (s *Service) UpdateEvent(ctx context.Context, worldID, eventID string, patch EventPatch) (*Event, error) {
	defer observe("update_event")()

	old, err := s.getEvent(ctx, worldID, eventID)
	if err != nil {
		return nil, err
	}
	if err := CheckEdit(old, patch); err != nil {
		return nil, err
	}
	timeChanged, _, _, _, impactsChanged := patch.changes(old)

	next := patch.apply(*old)
	if err := checkEventFields(&next); err != nil {
		return nil, err
	}

	switch Classify(old) {
	case ClassBirth:
		if timeChanged {
			if err := s.checkBirthMove(ctx, worldID, old, next.Time); err != nil {
				return nil, err
			}
		}
	case ClassDeath:
		if timeChanged {
			if err := s.checkDeathMove(ctx, worldID, old, next.Time); err != nil {
				return nil, err
			}
		}
	case ClassOrdinary:
		if timeChanged || impactsChanged {
			if err := s.checkImpacts(ctx, worldID, next.Impacts, next.Time, old.System); err != nil {
				return nil, err
			}
		}
	}
	next.UpdatedAt = s.now()

	writes, err := eventWrites(&next)
	if err != nil {
		return nil, err
	}
	if timeChanged || impactsChanged {
		keep := make(map[string]bool, len(writes))
		for _, w := range writes {
			keep[w.Item.Partition+"\x00"+w.Item.SortKey] = true
		}
		stale, err := eventDeletes(old)
		if err != nil {
			return nil, err
		}
		for _, w := range stale {
			if !keep[w.Item.Partition+"\x00"+w.Item.SortKey] {
				writes = append(writes, w)
			}
		}
	}
	if err := s.writeAll(ctx, "update event", writes); err != nil {
		return nil, err
	}
	return &next, nil
}

// checkBirthMove keeps every subject's end strictly after its new birth time.
func (s *Service) checkBirthMove(ctx context.Context, worldID string, birth *Event, newTime int64) error {
	for _, sid := range LifecycleSubjects(birth) {
		subj, _, err := s.resolve(ctx, worldID, sid)
		if err != nil || subj.Kind == id.KindUnknown {
			continue
		}
		endAt, ok, err := s.endTime(ctx, worldID, subj)
		if err != nil {
			return err
		}
		if ok && endAt <= newTime {
			return worlderr.New(worlderr.KindInvalidLifecycleOrdering).
				With("entity_id", sid, "time", newTime, "end_time", endAt).
				Errorf("%s %q ends at time %d; its beginning cannot move to time %d", sid, subj.Name(), endAt, newTime)
		}
	}
	return nil
}

// checkDeathMove keeps a moved end strictly after each subject's birth.
func (s *Service) checkDeathMove(ctx context.Context, worldID string, death *Event, newTime int64) error {
	for _, sid := range LifecycleSubjects(death) {
		birth, err := s.birthEvent(ctx, worldID, sid)
		if err != nil {
			return err
		}
		if birth != nil && newTime <= birth.Time {
			return worlderr.New(worlderr.KindInvalidLifecycleOrdering).
				With("entity_id", sid, "time", newTime, "birth_time", birth.Time).
				Errorf("%s began at time %d; its end cannot move to time %d", sid, birth.Time, newTime)
		}
	}
	return nil
}

// DeleteEvent removes an event. Epoch and birth events are protected;
// deleting a death event revives the subjects it ended.
func (s *Service) DeleteEvent(ctx context.Context, worldID, eventID string) error {
	defer observe("delete_event")()

	ev, err := s.getEvent(ctx, worldID, eventID)
	if err != nil {
		return err
	}
	if err := CheckDelete(ev); err != nil {
		return err
	}
	return s.removeEvent(ctx, worldID, ev)
}

// ListEvents returns the world timeline in time order, optionally up to and
// including upper.
func (s *Service) ListEvents(ctx context.Context, worldID string, upper *int64) ([]Event, error) {
	if _, _, err := s.requireWorld(ctx, worldID); err != nil {
		return nil, err
	}
	var opts store.ScanOptions
	if upper != nil {
		bound, err := keyspace.EventUpperBound(*upper)
		if err != nil {
			return nil, invalidInput("time %d: %v", *upper, err)
		}
		opts.UpperBound = bound
	}
	items, err := s.db.ScanPrefix(ctx, worldID, keyspace.EventPrefix, opts)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(items))
	for _, it := range items {
		var ev Event
		if err := json.Unmarshal(it.Data, &ev); err != nil {
			return nil, fmt.Errorf("decoding event %s: %w", it.SortKey, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// ListEventsByEntity returns the events touching a character, thing or
// relationship in time order, optionally up to and including upper.
func (s *Service) ListEventsByEntity(ctx context.Context, worldID, subjectID string, upper *int64) ([]Event, error) {
	if _, _, err := s.requireSubject(ctx, worldID, subjectID, isSubjectKind); err != nil {
		return nil, err
	}
	return s.subjectEvents(ctx, worldID, subjectID, upper)
}

func checkEventFields(ev *Event) error {
	if ev.Duration < 0 {
		return worlderr.New(worlderr.KindInvalidInput).
			With("event_id", ev.ID, "duration", ev.Duration).
			Errorf("event duration must not be negative, got %d", ev.Duration)
	}
	if _, err := keyspace.EncodeTime(ev.Time); err != nil {
		return worlderr.New(worlderr.KindInvalidInput).
			With("event_id", ev.ID, "time", ev.Time).
			Errorf("event time %d is outside [%d, %d]", ev.Time, keyspace.MinTime, keyspace.MaxTime)
	}
	if _, err := keyspace.EncodeTime(ev.Time + ev.Duration); err != nil {
		return invalidInput("event ends outside the representable time range")
	}
	if ev.PlaceID != "" && !id.Valid(ev.PlaceID, id.KindPlace) {
		return worlderr.New(worlderr.KindInvalidInput).
			With("event_id", ev.ID, "place_id", ev.PlaceID).
			Errorf("place %q is not a valid place id", ev.PlaceID)
	}
	if strings.TrimSpace(ev.Content) == "" && !ev.System {
		return invalidInput("event content is required")
	}
	return nil
}
