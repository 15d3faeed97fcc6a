// Package world is the event-sourced world-state engine.
//
// Characters, things and relationships keep only static fields on their
// records. Every dynamic attribute is written as an event impact and read
// back by replaying the subject's events up to a story time. The Service
// validates every mutation against the stored records before writing, and
// writes each event together with the reverse-index rows that make "all
// events touching X, in time order" a single prefix scan.
package world

import (
	"context"
	"time"

	"go.uber.org/zap"

	"worldline/internal/store"
)

// NameResolver supplies display names for classification nodes, such as
// relationship types. It is backed by the schema outside the engine.
type NameResolver interface {
	NodeName(ctx context.Context, nodeID string) (string, error)
}

type idNames struct{}

func (idNames) NodeName(_ context.Context, nodeID string) (string, error) { return nodeID, nil }

// Options configures a Service. Zero values are valid.
type Options struct {
	Logger    *zap.Logger
	Names     NameResolver
	Now       func() time.Time
	BatchSize int
}

// Service implements the engine's inbound operations on top of a store.
type Service struct {
	db        store.Store
	log       *zap.Logger
	names     NameResolver
	now       func() time.Time
	batchSize int
}

func NewService(db store.Store, opts Options) *Service {
	s := &Service{
		db:        db,
		log:       opts.Logger,
		names:     opts.Names,
		now:       opts.Now,
		batchSize: opts.BatchSize,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.names == nil {
		s.names = idNames{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.batchSize <= 0 || s.batchSize > store.MaxBatchSize {
		s.batchSize = store.MaxBatchSize
	}
	return s
}
