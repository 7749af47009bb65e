package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRoundTrip(t *testing.T) {
	workspace := t.TempDir()
	cfg := Default("demo")
	if cfg.Project.ID != "demo" {
		t.Fatalf("project id %q", cfg.Project.ID)
	}
	if cfg.AI.Enabled {
		t.Fatal("ai enabled by default")
	}
	if err := cfg.Write(workspace); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := Load(workspace)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Project.ID != "demo" || loaded.Auth.JWTSecretEnv != "PULSEBOARD_JWT_SECRET" {
		t.Fatalf("loaded %+v", loaded)
	}
}

func TestLoadOptionalFallsBack(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir(), "fallback")
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Project.ID != "fallback" {
		t.Fatalf("project id %q", cfg.Project.ID)
	}
}

func TestValidate(t *testing.T) {
	if _, err := FromYAML([]byte("version: 1\nproject:\n  id: \"\"\n")); err == nil {
		t.Fatal("expected error for empty project id")
	}
	if _, err := FromYAML([]byte("version: 1\nproject:\n  id: x\nai:\n  enabled: true\n")); err == nil {
		t.Fatal("expected error for ai without key env")
	}
	if _, err := FromYAML([]byte("version: 1\nproject:\n  id: x\nwebhooks:\n  - url: \"\"\n")); err == nil {
		t.Fatal("expected error for webhook without url")
	}
}

func TestJWTSecretFromEnv(t *testing.T) {
	cfg := Default("demo")
	t.Setenv("PULSEBOARD_JWT_SECRET", "s3cret")
	if got := cfg.JWTSecret(); got != "s3cret" {
		t.Fatalf("secret %q", got)
	}
}

func TestWriteCreatesFile(t *testing.T) {
	workspace := t.TempDir()
	if err := Default("demo").Write(workspace); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, "pulseboard.yml")); err != nil {
		t.Fatalf("stat: %v", err)
	}
}
