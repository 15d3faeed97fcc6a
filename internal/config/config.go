package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"worldline/internal/id"
)

const (
	DefaultPath = "worldline.yaml"
	EnvPrefix   = "WORLDLINE_"
)

// Storage drivers.
const (
	DriverBolt     = "bbolt"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type ProjectConfig struct {
	Project string `yaml:"project"`
	Version int    `yaml:"version"`
	Owner   string `yaml:"owner" env:"OWNER"`
	// World is the default world for world-scoped commands.
	World   string        `yaml:"world" env:"WORLD"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
	Neo4j   Neo4jConfig   `yaml:"neo4j" envPrefix:"NEO4J_"`
	Schema  string        `yaml:"schema" env:"SCHEMA"`
	Ingest  IngestConfig  `yaml:"ingest"`
	// MetricsAddr, if set, is where serve exposes prometheus metrics.
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

type IngestConfig struct {
	Paths   []string `yaml:"paths"`
	Exclude []string `yaml:"exclude"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

type LogConfig struct {
	Mode  string `yaml:"mode" env:"MODE"`
	Level string `yaml:"level" env:"LEVEL"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri" env:"URI"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	Database string `yaml:"database" env:"DATABASE"`
}

// Defaults is the configuration used when no project file exists.
func Defaults() ProjectConfig {
	return ProjectConfig{
		Project: "worldline",
		Version: 1,
		Owner:   "local",
		Storage: StorageConfig{Driver: DriverBolt, DSN: "worldline.db"},
		Log:     LogConfig{Mode: "dev", Level: "info"},
		Ingest:  IngestConfig{Paths: []string{"./lore/"}},
	}
}

// LoadProjectConfig reads the project file at path, applies WORLDLINE_*
// environment overrides and validates the result.
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}
	return finish(&cfg)
}

// LoadOrDefault behaves like LoadProjectConfig but falls back to Defaults
// when the file does not exist.
func LoadOrDefault(path string) (*ProjectConfig, error) {
	cfg, err := LoadProjectConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		d := Defaults()
		return finish(&d)
	}
	return cfg, err
}

func finish(cfg *ProjectConfig) (*ProjectConfig, error) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("loading project config: parse env: %w", err)
	}
	if err := validateProjectConfig(cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}
	return cfg, nil
}

func validateProjectConfig(cfg *ProjectConfig) error {
	if strings.TrimSpace(cfg.Project) == "" {
		return fmt.Errorf("project name is required")
	}
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported version: %d", cfg.Version)
	}
	if strings.TrimSpace(cfg.Owner) == "" {
		return fmt.Errorf("owner is required")
	}
	switch cfg.Storage.Driver {
	case DriverBolt, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported storage driver: %q", cfg.Storage.Driver)
	}
	if strings.TrimSpace(cfg.Storage.DSN) == "" {
		return fmt.Errorf("storage dsn is required")
	}
	if cfg.World != "" && !id.Valid(cfg.World, id.KindWorld) {
		return fmt.Errorf("invalid world id: %q", cfg.World)
	}
	switch strings.ToLower(cfg.Log.Mode) {
	case "", "dev", "development", "prod", "production":
	default:
		return fmt.Errorf("unsupported log mode: %q", cfg.Log.Mode)
	}
	return nil
}
