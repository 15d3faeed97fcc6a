package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"worldline/internal/config"
	"worldline/internal/world"
)

const schemaPath = "schema.yaml"

const starterSchema = `version: 1

attributes:
  - name: title
    type: string
  - name: mood
    type: enum
    values: [calm, wary, angry, grieving]
    applies_to: [character]
  - name: wounds
    type: number
    applies_to: [character]
  - name: condition
    type: enum
    values: [intact, damaged, broken]
    applies_to: [thing]
  - name: trust
    type: number
    applies_to: [relationship]

relationship_types:
  - id: parent
    name: parent of
    inverse: child of
  - id: sibling
    name: sibling of
    symmetric: true
  - id: mentor
    name: mentor of
    inverse: student of
  - id: owns
    name: owns
    inverse: owned by
  - id: ally
    name: ally of
    symmetric: true
`

func initCmd() *cobra.Command {
	var name, owner, epoch string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a worldline project and create its first world",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required")
			}
			return runInit(context.Background(), name, owner, epoch)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Project and world name")
	cmd.Flags().StringVar(&owner, "owner", "local", "Owner ID recorded on the world")
	cmd.Flags().StringVar(&epoch, "epoch", "", "Text of the world's epoch event")
	return cmd
}

func runInit(ctx context.Context, name, owner, epoch string) error {
	for _, path := range []string{configPath, schemaPath} {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	schema, err := config.ParseSchema([]byte(starterSchema))
	if err != nil {
		return fmt.Errorf("parsing starter schema: %w", err)
	}

	cfg := config.Defaults()
	cfg.Project = name
	cfg.Owner = owner
	cfg.Schema = schemaPath

	db, err := openStore(ctx, &cfg)
	if err != nil {
		return err
	}
	svc := world.NewService(db, world.Options{Names: schema})
	w, _, err := svc.CreateWorld(ctx, owner, world.WorldInput{Name: name, Epoch: epoch})
	if closeErr := db.Close(ctx); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	cfg.World = w.ID

	out, err := yaml.Marshal(projectFile(cfg))
	if err != nil {
		return fmt.Errorf("encoding %s: %w", configPath, err)
	}
	if err := os.WriteFile(configPath, out, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}
	if err := os.WriteFile(schemaPath, []byte(starterSchema), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", schemaPath, err)
	}

	fmt.Fprintf(os.Stdout, "Initialised %s with world %s\n", configPath, w.ID)
	return nil
}

// fileConfig is the subset of config.ProjectConfig a new project
// file spells out.
type fileConfig struct {
	Project string               `yaml:"project"`
	Version int                  `yaml:"version"`
	Owner   string               `yaml:"owner"`
	World   string               `yaml:"world"`
	Schema  string               `yaml:"schema"`
	Storage config.StorageConfig `yaml:"storage"`
	Log     config.LogConfig     `yaml:"log"`
	Neo4j   config.Neo4jConfig   `yaml:"neo4j"`
	Ingest  config.IngestConfig  `yaml:"ingest"`
}

func projectFile(cfg config.ProjectConfig) fileConfig {
	return fileConfig{
		Project: cfg.Project,
		Version: cfg.Version,
		Owner:   cfg.Owner,
		World:   cfg.World,
		Schema:  cfg.Schema,
		Storage: cfg.Storage,
		Log:     cfg.Log,
		Neo4j:   config.Neo4jConfig{URI: "bolt://localhost:7687", Username: "neo4j", Password: "changeme", Database: "neo4j"},
		Ingest:  cfg.Ingest,
	}
}
