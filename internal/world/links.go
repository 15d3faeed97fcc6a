package world

import (
	"context"
	"errors"
	"strings"
	"time"

	"worldline/internal/keyspace"
	"worldline/internal/store"
	"worldline/internal/worlderr"
)

// CreateEventLink relates two events. The pair is stored once, in
// canonical order, so (a, b) and (b, a) name the same link.
func (s *Service) CreateEventLink(ctx context.Context, worldID, a, b, description string) (*EventLink, error) {
	defer observe("create_event_link")()

	if a == b {
		return nil, worlderr.New(worlderr.KindCyclicOrInvalidReference).
			With("event_id", a).
			Errorf("event %s cannot be linked to itself", a)
	}
	for _, eventID := range []string{a, b} {
		if _, err := s.getEvent(ctx, worldID, eventID); err != nil {
			return nil, err
		}
	}
	writes, link, err := linkWrites(worldID, a, b, description, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.writeAll(ctx, "create event link", writes); err != nil {
		return nil, err
	}
	return link, nil
}

// DeleteEventLink removes the link between two events in either order.
func (s *Service) DeleteEventLink(ctx context.Context, worldID, a, b string) error {
	defer observe("delete_event_link")()

	first, second := NormalizeLink(a, b)
	var link EventLink
	if _, err := s.load(ctx, worldID, keyspace.LinkKey(first, second), &link); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return worlderr.New(worlderr.KindNotFound).
				With("event_a", first, "event_b", second).
				Errorf("no link between %s and %s", first, second)
		}
		return err
	}
	return s.writeAll(ctx, "delete event link", []store.Write{
		store.DeleteWrite(worldID, keyspace.LinkKey(first, second)),
		store.DeleteWrite(first, keyspace.LinkRefKey(second)),
		store.DeleteWrite(second, keyspace.LinkRefKey(first)),
	})
}

// ListEventLinks returns every link naming the event.
func (s *Service) ListEventLinks(ctx context.Context, worldID, eventID string) ([]EventLink, error) {
	if _, err := s.getEvent(ctx, worldID, eventID); err != nil {
		return nil, err
	}
	refs, err := s.db.ScanPrefix(ctx, eventID, keyspace.LinkPrefix, store.ScanOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]EventLink, 0, len(refs))
	for _, ref := range refs {
		first, second := NormalizeLink(eventID, strings.TrimPrefix(ref.SortKey, keyspace.LinkPrefix))
		var link EventLink
		if _, err := s.load(ctx, worldID, keyspace.LinkKey(first, second), &link); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, link)
	}
	return out, nil
}

// linkWrites returns the canonical link row and a reverse row in each
// event's partition.
func linkWrites(worldID, a, b, description string, now time.Time) ([]store.Write, *EventLink, error) {
	first, second := NormalizeLink(a, b)
	link := &EventLink{WorldID: worldID, EventA: first, EventB: second, Description: description, CreatedAt: now}

	primary, err := putRecord(worldID, keyspace.LinkKey(first, second), link)
	if err != nil {
		return nil, nil, err
	}
	refA, err := putRecord(first, keyspace.LinkRefKey(second), linkRef{Other: second})
	if err != nil {
		return nil, nil, err
	}
	refB, err := putRecord(second, keyspace.LinkRefKey(first), linkRef{Other: first})
	if err != nil {
		return nil, nil, err
	}
	return []store.Write{primary, refA, refB}, link, nil
}

// linkDeletes returns deletes for every link naming eventID, in the world
// partition and in both events' partitions.
func (s *Service) linkDeletes(ctx context.Context, worldID, eventID string) ([]store.Write, error) {
	refs, err := s.db.ScanPrefix(ctx, eventID, keyspace.LinkPrefix, store.ScanOptions{})
	if err != nil {
		return nil, err
	}
	var writes []store.Write
	for _, ref := range refs {
		other := strings.TrimPrefix(ref.SortKey, keyspace.LinkPrefix)
		first, second := NormalizeLink(eventID, other)
		writes = append(writes,
			store.DeleteWrite(worldID, keyspace.LinkKey(first, second)),
			store.DeleteWrite(eventID, ref.SortKey),
			store.DeleteWrite(other, keyspace.LinkRefKey(eventID)),
		)
	}
	return writes, nil
}
