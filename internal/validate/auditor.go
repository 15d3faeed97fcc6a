package validate

import (
	"context"

	"worldline/internal/id"
	"worldline/internal/world"
)

// Auditor is the read surface the audit needs. *world.Service satisfies it.
type Auditor interface {
	ListEntities(ctx context.Context, worldID string, kind id.Kind) ([]world.Entity, error)
	ListRelationships(ctx context.Context, worldID string) ([]world.Relationship, error)
	ListEvents(ctx context.Context, worldID string, upper *int64) ([]world.Event, error)
}
