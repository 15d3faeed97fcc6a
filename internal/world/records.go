package world

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"worldline/internal/id"
	"worldline/internal/keyspace"
	"worldline/internal/store"
	"worldline/internal/worlderr"
)

// eventRef is the row stored under a subject partition for each event that
// touches the subject.
type eventRef struct {
	EventID string `json:"eventId"`
	Time    int64  `json:"time"`
}

type eventTime struct {
	Time int64 `json:"time"`
}

type relationshipRef struct {
	RelationshipID string `json:"relationshipId"`
}

type linkRef struct {
	Other string `json:"other"`
}

func record(partition, sortKey string, v any) (store.Item, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return store.Item{}, fmt.Errorf("encoding %s/%s: %w", partition, sortKey, err)
	}
	return store.Item{Partition: partition, SortKey: sortKey, Data: data}, nil
}

func putRecord(partition, sortKey string, v any) (store.Write, error) {
	it, err := record(partition, sortKey, v)
	if err != nil {
		return store.Write{}, err
	}
	return store.PutWrite(it), nil
}

// load reads and decodes one record. A missing row yields an error wrapping
// store.ErrNotFound.
func (s *Service) load(ctx context.Context, partition, sortKey string, out any) ([]byte, error) {
	it, err := s.db.Get(ctx, partition, sortKey)
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", partition, sortKey, err)
	}
	if err := json.Unmarshal(it.Data, out); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", partition, sortKey, err)
	}
	return it.Data, nil
}

func notFound(what, ref string) error {
	return worlderr.New(worlderr.KindNotFound).
		With("id", ref).
		Errorf("%s %s not found", what, ref)
}

func invalidInput(format string, args ...any) error {
	return worlderr.Errorf(worlderr.KindInvalidInput, format, args...)
}

func (s *Service) requireWorld(ctx context.Context, worldID string) (*World, []byte, error) {
	var w World
	raw, err := s.load(ctx, worldID, keyspace.WorldKey, &w)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, notFound("world", worldID)
	}
	if err != nil {
		return nil, nil, err
	}
	return &w, raw, nil
}

func (s *Service) loadEntity(ctx context.Context, worldID, entityID string) (*Entity, []byte, error) {
	var e Entity
	raw, err := s.load(ctx, worldID, keyspace.EntityKey(entityID), &e)
	if err != nil {
		return nil, nil, err
	}
	return &e, raw, nil
}

func (s *Service) loadRelationship(ctx context.Context, worldID, relID string) (*Relationship, []byte, error) {
	var r Relationship
	raw, err := s.load(ctx, worldID, keyspace.EntityKey(relID), &r)
	if err != nil {
		return nil, nil, err
	}
	return &r, raw, nil
}

// loadEvent finds an event through its time row, then reads the primary row.
func (s *Service) loadEvent(ctx context.Context, worldID, eventID string) (*Event, error) {
	var et eventTime
	if _, err := s.load(ctx, worldID, keyspace.EventTimeKey(eventID), &et); err != nil {
		return nil, err
	}
	key, err := keyspace.EventKey(et.Time, eventID)
	if err != nil {
		return nil, err
	}
	var ev Event
	if _, err := s.load(ctx, worldID, key, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *Service) getEvent(ctx context.Context, worldID, eventID string) (*Event, error) {
	if id.KindOf(eventID) != id.KindEvent {
		return nil, notFound("event", eventID)
	}
	ev, err := s.loadEvent(ctx, worldID, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("event", eventID)
	}
	return ev, err
}

// eventWrites returns the primary row, the time row and one reverse row per
// subject the event touches.
func eventWrites(ev *Event) ([]store.Write, error) {
	key, err := keyspace.EventKey(ev.Time, ev.ID)
	if err != nil {
		return nil, invalidInput("event %s: %v", ev.ID, err)
	}
	primary, err := putRecord(ev.WorldID, key, ev)
	if err != nil {
		return nil, err
	}
	timeRow, err := putRecord(ev.WorldID, keyspace.EventTimeKey(ev.ID), eventTime{Time: ev.Time})
	if err != nil {
		return nil, err
	}
	writes := []store.Write{primary, timeRow}
	for _, subject := range ev.Impacts.Subjects() {
		ref, err := putRecord(subject, key, eventRef{EventID: ev.ID, Time: ev.Time})
		if err != nil {
			return nil, err
		}
		writes = append(writes, ref)
	}
	return writes, nil
}

func eventDeletes(ev *Event) ([]store.Write, error) {
	key, err := keyspace.EventKey(ev.Time, ev.ID)
	if err != nil {
		return nil, err
	}
	writes := []store.Write{
		store.DeleteWrite(ev.WorldID, key),
		store.DeleteWrite(ev.WorldID, keyspace.EventTimeKey(ev.ID)),
	}
	for _, subject := range ev.Impacts.Subjects() {
		writes = append(writes, store.DeleteWrite(subject, key))
	}
	return writes, nil
}

// writeAll submits writes in bounded batches. Batches are atomic on their
// own but not with each other: once one batch has landed, a later failure
// is reported as a partial write.
func (s *Service) writeAll(ctx context.Context, operation string, writes []store.Write) error {
	chunks := store.Chunk(writes, s.batchSize)
	if len(chunks) > 1 {
		s.log.Debug("chunking write",
			zap.String("operation", operation),
			zap.Int("rows", len(writes)),
			zap.Int("batches", len(chunks)))
	}

	committed := 0
	for _, chunk := range chunks {
		if err := s.db.WriteBatch(ctx, chunk); err != nil {
			if committed == 0 {
				return fmt.Errorf("%s: %w", operation, err)
			}
			partialWriteFailuresTotal.Inc()
			s.log.Warn("partial write",
				zap.String("operation", operation),
				zap.Int("committed", committed),
				zap.Int("total", len(writes)),
				zap.Error(err))
			return worlderr.New(worlderr.KindPartialWriteFailure).
				With("operation", operation, "committed", committed, "total", len(writes)).
				Wrapf(err, "%s: wrote %d of %d rows", operation, committed, len(writes))
		}
		committed += len(chunk)
		rowsWrittenTotal.Add(float64(len(chunk)))
	}
	return nil
}
