package ingest

import (
	"context"

	"worldline/internal/id"
	"worldline/internal/world"
)

// Seeder is the write surface ingest drives. *world.Service satisfies it.
type Seeder interface {
	ListEntities(ctx context.Context, worldID string, kind id.Kind) ([]world.Entity, error)
	ListEvents(ctx context.Context, worldID string, upper *int64) ([]world.Event, error)
	CreateEntity(ctx context.Context, worldID string, in world.EntityInput) (*world.Entity, *world.Event, error)
	CreateRelationship(ctx context.Context, worldID string, in world.RelationshipInput) (*world.Relationship, *world.Event, error)
	EndEntity(ctx context.Context, worldID, entityID string, in world.EndInput) (*world.Event, error)
	CreateEvent(ctx context.Context, worldID string, in world.EventInput) (*world.Event, error)
}
