package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndLoadDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqldeck.yaml")

	if err := WriteDefaultConfig(path); err != nil {
		t.Fatalf("WriteDefaultConfig() error = %v", err)
	}

	t.Setenv("SQLDECK_VAULT_KEY", "deadbeef")

	cfg, err := LoadYAMLConfig(path)
	if err != nil {
		t.Fatalf("LoadYAMLConfig() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != "30s" {
		t.Errorf("Server.ShutdownTimeout = %q, want %q", cfg.Server.ShutdownTimeout, "30s")
	}
	if cfg.Server.RateLimit != 300 {
		t.Errorf("Server.RateLimit = %d, want 300", cfg.Server.RateLimit)
	}
	if cfg.Auth.APIKeyHeader != "X-API-Key" {
		t.Errorf("Auth.APIKeyHeader = %q, want %q", cfg.Auth.APIKeyHeader, "X-API-Key")
	}
	if cfg.MCP.MaxRows != 1000 {
		t.Errorf("MCP.MaxRows = %d, want 1000", cfg.MCP.MaxRows)
	}
	// ${SQLDECK_VAULT_KEY} in the default file expands on load.
	if cfg.Vault.Key != "deadbeef" {
		t.Errorf("Vault.Key = %q, want %q", cfg.Vault.Key, "deadbeef")
	}
}

func TestLoadYAMLConfig_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "s3cret")

	path := filepath.Join(t.TempDir(), "sqldeck.yaml")
	raw := "auth:\n  jwt_secret: ${TEST_JWT_SECRET}\n"
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadYAMLConfig(path)
	if err != nil {
		t.Fatalf("LoadYAMLConfig() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "s3cret")
	}
}

func TestLoadYAMLConfig_MissingFile(t *testing.T) {
	_, err := LoadYAMLConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadYAMLConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqldeck.yaml")
	if err := os.WriteFile(path, []byte("server: [not: a: map"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadYAMLConfig(path); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}
