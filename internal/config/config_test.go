package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
geminiAPIKey: "key"
databaseURL: "postgres://localhost/campusai"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "gemini-2.5-flash" {
		t.Fatalf("expected default model, got %q", cfg.Model)
	}
	if cfg.DataDir != "data" {
		t.Fatalf("expected default data dir, got %q", cfg.DataDir)
	}
	if cfg.SessionStrategy != "memory" {
		t.Fatalf("expected memory session strategy, got %q", cfg.SessionStrategy)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
geminiAPIKey: "file-key"
databaseURL: "postgres://localhost/campusai"
`)
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GeminiAPIKey != "env-key" {
		t.Fatalf("expected env override, got %q", cfg.GeminiAPIKey)
	}
	if cfg.Model != "gemini-2.5-pro" {
		t.Fatalf("expected env model, got %q", cfg.Model)
	}
}

func TestLoadRequiresCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing port", "geminiAPIKey: k\ndatabaseURL: d\n", "port is required"},
		{"missing api key", "port: \"8080\"\ndatabaseURL: d\n", "geminiAPIKey is required"},
		{"missing database", "port: \"8080\"\ngeminiAPIKey: k\n", "databaseURL is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "")
			t.Setenv("DATABASE_URL", "")
			path := writeConfig(t, tt.yaml)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %q error, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadValidatesSessionStrategy(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
geminiAPIKey: "key"
databaseURL: "postgres://localhost/campusai"
sessionStrategy: "redis"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "redisAddr is required") {
		t.Fatalf("expected redis addr error, got: %v", err)
	}

	path = writeConfig(t, `
port: "8080"
geminiAPIKey: "key"
databaseURL: "postgres://localhost/campusai"
sessionStrategy: "carrier-pigeon"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown session strategy") {
		t.Fatalf("expected unknown strategy error, got: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
