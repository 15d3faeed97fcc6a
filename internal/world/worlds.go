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
)

type WorldInput struct {
	Name        string
	Description string
	Settings    string
	Epoch       string
}

type WorldPatch struct {
	Name        *string
	Description *string
	Settings    *string
	Epoch       *string
}

// CreateWorld writes the world record and its epoch event at time 0.
func (s *Service) CreateWorld(ctx context.Context, ownerID string, in WorldInput) (*World, *Event, error) {
	defer observe("create_world")()

	if strings.TrimSpace(ownerID) == "" {
		return nil, nil, invalidInput("world owner is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, nil, invalidInput("world name is required")
	}

	now := s.now()
	w := &World{
		ID:          id.New(id.KindWorld),
		OwnerID:     ownerID,
		Name:        in.Name,
		Description: in.Description,
		Settings:    in.Settings,
		Epoch:       in.Epoch,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	content := in.Epoch
	if content == "" {
		content = fmt.Sprintf("The beginning of %s", in.Name)
	}
	epoch := &Event{
		ID:        id.New(id.KindEvent),
		WorldID:   w.ID,
		Time:      0,
		Content:   content,
		System:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	w.EpochEventID = epoch.ID

	worldRow, err := record(w.ID, keyspace.WorldKey, w)
	if err != nil {
		return nil, nil, err
	}
	worldRow.Owner = ownerID
	writes, err := eventWrites(epoch)
	if err != nil {
		return nil, nil, err
	}
	// Event rows first: a world row is only visible once its epoch exists.
	writes = append(writes, store.PutWrite(worldRow))
	if err := s.writeAll(ctx, "create world", writes); err != nil {
		return nil, nil, err
	}

	s.log.Info("world created", zap.String("world_id", w.ID), zap.String("owner_id", ownerID))
	return w, epoch, nil
}

func (s *Service) GetWorld(ctx context.Context, worldID string) (*World, error) {
	w, _, err := s.requireWorld(ctx, worldID)
	return w, err
}

// ListWorlds returns the worlds owned by ownerID through the owner index.
func (s *Service) ListWorlds(ctx context.Context, ownerID string) ([]World, error) {
	items, err := s.db.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var worlds []World
	for _, it := range items {
		if it.SortKey != keyspace.WorldKey {
			continue
		}
		var w World
		if err := json.Unmarshal(it.Data, &w); err != nil {
			return nil, fmt.Errorf("decoding world %s: %w", it.Partition, err)
		}
		worlds = append(worlds, w)
	}
	return worlds, nil
}

// UpdateWorld edits the world record in place. A new epoch description is
// also written to the epoch event's content.
func (s *Service) UpdateWorld(ctx context.Context, worldID string, patch WorldPatch) (*World, error) {
	defer observe("update_world")()

	w, _, err := s.requireWorld(ctx, worldID)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, invalidInput("world name is required")
		}
		w.Name = *patch.Name
	}
	if patch.Description != nil {
		w.Description = *patch.Description
	}
	if patch.Settings != nil {
		w.Settings = *patch.Settings
	}
	if patch.Epoch != nil && *patch.Epoch != w.Epoch {
		w.Epoch = *patch.Epoch
		if _, err := s.UpdateEvent(ctx, worldID, w.EpochEventID, EventPatch{Content: patch.Epoch}); err != nil {
			return nil, fmt.Errorf("updating epoch event: %w", err)
		}
	}
	w.UpdatedAt = s.now()

	row, err := record(w.ID, keyspace.WorldKey, w)
	if err != nil {
		return nil, err
	}
	row.Owner = w.OwnerID
	if err := s.db.Put(ctx, row); err != nil {
		return nil, fmt.Errorf("updating world %s: %w", worldID, err)
	}
	return w, nil
}

// DeleteWorld removes the world and every record it contains, including
// the reverse-index partitions of its entities, relationships and events.
// The world row is written last so an interrupted delete can be retried.
func (s *Service) DeleteWorld(ctx context.Context, worldID string) error {
	defer observe("delete_world")()

	if _, _, err := s.requireWorld(ctx, worldID); err != nil {
		return err
	}
	items, err := s.db.ScanPrefix(ctx, worldID, "", store.ScanOptions{})
	if err != nil {
		return err
	}

	var writes []store.Write
	var worldRow *store.Item
	for i := range items {
		it := items[i]
		var owned string
		switch {
		case it.SortKey == keyspace.WorldKey:
			worldRow = &items[i]
			continue
		case strings.HasPrefix(it.SortKey, keyspace.EventTimePrefix):
			owned = strings.TrimPrefix(it.SortKey, keyspace.EventTimePrefix)
		case isSubjectKind(id.KindOf(it.SortKey)):
			owned = it.SortKey
		}
		if owned != "" {
			rows, err := s.db.ScanPrefix(ctx, owned, "", store.ScanOptions{})
			if err != nil {
				return err
			}
			for _, r := range rows {
				writes = append(writes, store.DeleteWrite(r.Partition, r.SortKey))
			}
		}
		writes = append(writes, store.DeleteWrite(it.Partition, it.SortKey))
	}
	if worldRow != nil {
		writes = append(writes, store.DeleteWrite(worldRow.Partition, worldRow.SortKey))
	}

	if err := s.writeAll(ctx, "delete world", writes); err != nil {
		return err
	}
	s.log.Info("world deleted", zap.String("world_id", worldID), zap.Int("rows", len(writes)))
	return nil
}
