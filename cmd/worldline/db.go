package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"worldline/internal/config"
	"worldline/internal/logging"
	"worldline/internal/store"
	boltstore "worldline/internal/store/bbolt"
	"worldline/internal/store/postgres"
	"worldline/internal/store/sqlite"
	"worldline/internal/world"
)

func openStore(ctx context.Context, cfg *config.ProjectConfig) (store.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverBolt:
		return boltstore.Open(cfg.Storage.DSN)
	case config.DriverSQLite:
		return sqlite.New(ctx, cfg.Storage.DSN)
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Storage.Driver)
	}
}

// env is everything a command needs to talk to the engine.
type env struct {
	cfg    *config.ProjectConfig
	logger *zap.Logger
	schema *config.Schema
	db     store.Store
	svc    *world.Service
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	var schema *config.Schema
	if cfg.Schema != "" {
		schema, err = config.LoadSchema(cfg.Schema)
		if err != nil {
			return nil, err
		}
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := world.Options{Logger: logger}
	if schema != nil {
		opts.Names = schema
	}
	return &env{
		cfg:    cfg,
		logger: logger,
		schema: schema,
		db:     db,
		svc:    world.NewService(db, opts),
	}, nil
}

func (e *env) Close(ctx context.Context) {
	if err := e.db.Close(ctx); err != nil {
		e.logger.Warn("closing store", zap.Error(err))
	}
	_ = e.logger.Sync()
}

// world resolves the world a command operates on.
func (e *env) world() (string, error) {
	if worldFlag != "" {
		return worldFlag, nil
	}
	if e.cfg.World != "" {
		return e.cfg.World, nil
	}
	return "", fmt.Errorf("no world selected: pass --world or set world in %s", configPath)
}

// inWorld opens the engine, resolves the world and runs fn.
func inWorld(fn func(ctx context.Context, e *env, worldID string, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		worldID, err := e.world()
		if err != nil {
			return err
		}
		return fn(ctx, e, worldID, args)
	}
}
