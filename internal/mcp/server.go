// Package mcp exposes the world engine's inbound operations as MCP tools.
package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"worldline/internal/config"
	"worldline/internal/id"
	"worldline/internal/world"
)

// Engine is the subset of world.Service the tools call.
type Engine interface {
	CreateEntity(ctx context.Context, worldID string, in world.EntityInput) (*world.Entity, *world.Event, error)
	UpdateEntity(ctx context.Context, worldID, entityID string, patch world.EntityPatch) (*world.Entity, error)
	EndEntity(ctx context.Context, worldID, entityID string, in world.EndInput) (*world.Event, error)
	UndoEndEntity(ctx context.Context, worldID, entityID string) error
	DeleteEntity(ctx context.Context, worldID, entityID string) error
	ListEntities(ctx context.Context, worldID string, kind id.Kind) ([]world.Entity, error)

	CreateRelationship(ctx context.Context, worldID string, in world.RelationshipInput) (*world.Relationship, *world.Event, error)
	EndRelationship(ctx context.Context, worldID, relID string, in world.EndInput) (*world.Event, error)
	UndoEndRelationship(ctx context.Context, worldID, relID string) error
	DeleteRelationship(ctx context.Context, worldID, relID string) error

	CreateEvent(ctx context.Context, worldID string, in world.EventInput) (*world.Event, error)
	UpdateEvent(ctx context.Context, worldID, eventID string, patch world.EventPatch) (*world.Event, error)
	DeleteEvent(ctx context.Context, worldID, eventID string) error
	ListEventsByEntity(ctx context.Context, worldID, subjectID string, upper *int64) ([]world.Event, error)

	ComputeState(ctx context.Context, worldID, entityID string, asOf int64) (*world.State, error)
	ComputeRelationshipState(ctx context.Context, worldID, relID string, asOf int64, dir world.Direction) (*world.State, error)
}

type Options struct {
	// WorldID is used when a tool call leaves world_id empty.
	WorldID string
	Version string
	Logger  *zap.Logger
}

type Server struct {
	engine  Engine
	schema  *config.Schema
	worldID string
	logger  *zap.Logger
	mcp     *sdk.Server
}

func NewServer(engine Engine, schema *config.Schema, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:  engine,
		schema:  schema,
		worldID: opts.WorldID,
		logger:  logger,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "worldline",
			Version: opts.Version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
