package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadProjectConfig(t *testing.T) {
	t.Run("valid config loads", func(t *testing.T) {
		cfg, err := LoadProjectConfig(filepath.Join("testdata", "valid_config.yaml"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Project != "test-project" {
			t.Fatalf("expected project name, got %q", cfg.Project)
		}
		if cfg.Storage.Driver != DriverSQLite {
			t.Fatalf("expected sqlite driver, got %q", cfg.Storage.Driver)
		}
		if cfg.Neo4j.URI != "bolt://localhost:7687" {
			t.Fatalf("expected neo4j uri, got %q", cfg.Neo4j.URI)
		}
	})

	t.Run("defaults fill omitted sections", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\n")
		cfg, err := LoadProjectConfig(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Storage.Driver != DriverBolt || cfg.Owner != "local" {
			t.Fatalf("expected defaults, got %+v", cfg)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("WORLDLINE_STORAGE_DRIVER", "postgres")
		t.Setenv("WORLDLINE_STORAGE_DSN", "postgres://localhost/worlds")
		t.Setenv("WORLDLINE_LOG_LEVEL", "debug")
		cfg, err := LoadProjectConfig(filepath.Join("testdata", "valid_config.yaml"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Storage.Driver != DriverPostgres || cfg.Storage.DSN != "postgres://localhost/worlds" {
			t.Fatalf("expected env storage, got %+v", cfg.Storage)
		}
		if cfg.Log.Level != "debug" {
			t.Fatalf("expected debug level, got %q", cfg.Log.Level)
		}
	})

	t.Run("missing project name", func(t *testing.T) {
		path := writeTempConfig(t, "project: \"\"\nversion: 1\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unsupported version", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 2\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\nstorage:\n  driver: dynamo\n  dsn: x\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("invalid world id", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\nworld: chr_01J0000000000000000000000\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("ingest paths replace the default", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\ningest:\n  paths: [./notes/]\n  exclude: [./notes/drafts/]\n")
		cfg, err := LoadProjectConfig(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(cfg.Ingest.Paths) != 1 || cfg.Ingest.Paths[0] != "./notes/" || len(cfg.Ingest.Exclude) != 1 {
			t.Fatalf("unexpected ingest config: %+v", cfg.Ingest)
		}
	})

	t.Run("empty dsn", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\nstorage:\n  driver: bbolt\n  dsn: \"\"\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unknown log mode", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\nlog:\n  mode: verbose\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("file not found", func(t *testing.T) {
		if _, err := LoadProjectConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeTempConfig(t, "project: [\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected defaults, got %v", err)
	}
	if cfg.Storage.DSN != "worldline.db" {
		t.Fatalf("expected default dsn, got %q", cfg.Storage.DSN)
	}

	path := writeTempConfig(t, "project: [\n")
	if _, err := LoadOrDefault(path); err == nil {
		t.Fatalf("expected parse error to surface")
	}
}

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}
