package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/sipauth/internal/bytesize"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are escapes.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "info"

auth:
  realm: ims.example.com

hss:
  type: http
  url: http://hss.example.com:8081
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Auth.Realm != "ims.example.com" {
		t.Errorf("Expected realm from file, got %q", cfg.Auth.Realm)
	}
	if cfg.Auth.VectorTTL != 30*time.Second {
		t.Errorf("Expected default vector_ttl 30s, got %v", cfg.Auth.VectorTTL)
	}
	if cfg.Auth.MaxOutstandingPerIdentity != DefaultMaxOutstandingPerIdentity {
		t.Errorf("Expected default cap %d, got %d", DefaultMaxOutstandingPerIdentity, cfg.Auth.MaxOutstandingPerIdentity)
	}
	if cfg.HSS.Timeout != 2*time.Second {
		t.Errorf("Expected default hss timeout 2s, got %v", cfg.HSS.Timeout)
	}
	if cfg.VectorStore.Type != VectorStoreMemory {
		t.Errorf("Expected default vector store 'memory', got %q", cfg.VectorStore.Type)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
}

func TestLoad_DurationsAndSizes(t *testing.T) {
	path := writeConfig(t, `
logging:
  output: /tmp/sipauth.log
  max_size: 10Mi

auth:
  vector_ttl: 45s

vector_store:
  type: sql
  cleanup_interval: 5s
  sql:
    type: sqlite
    sqlite:
      path: "`+yamlSafePath(t.TempDir())+`/vectors.db"
    cleanup_interval: 2m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.MaxSize != 10*bytesize.MiB {
		t.Errorf("Expected max_size 10Mi, got %v", cfg.Logging.MaxSize)
	}
	if cfg.Auth.VectorTTL != 45*time.Second {
		t.Errorf("Expected vector_ttl 45s, got %v", cfg.Auth.VectorTTL)
	}
	if cfg.VectorStore.SQL.CleanupInterval != 2*time.Minute {
		t.Errorf("Expected sql cleanup_interval 2m, got %v", cfg.VectorStore.SQL.CleanupInterval)
	}
}

func TestLoad_StaticSubscribers(t *testing.T) {
	path := writeConfig(t, `
hss:
  type: static
  subscribers:
    - impi: alice@example.com
      password: secret
      qop: auth
    - impi: bob@example.com
      aka:
        challenge: cmFuZGF1dG4=
        response: 0011aabb
        cryptkey: ck
        integritykey: ik
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if len(cfg.HSS.Subscribers) != 2 {
		t.Fatalf("Expected 2 subscribers, got %d", len(cfg.HSS.Subscribers))
	}
	bob := cfg.HSS.Subscribers[1]
	if bob.AKA == nil || bob.AKA.Response != "0011aabb" || bob.AKA.IntegrityKey != "ik" {
		t.Errorf("AKA subscriber not decoded: %+v", bob.AKA)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg.HSS.URL != DefaultHSSURL {
		t.Errorf("Expected default HSS url, got %q", cfg.HSS.URL)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("SIPAUTH_LOGGING_LEVEL", "ERROR")
	t.Setenv("SIPAUTH_API_PORT", "9090")
	t.Setenv("SIPAUTH_AUTH_REALM", "env.example.com")

	path := writeConfig(t, `
logging:
  level: "INFO"

api:
  port: 8080
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("Expected port 9090 from env var, got %d", cfg.API.Port)
	}
	// Not present in the file at all.
	if cfg.Auth.Realm != "env.example.com" {
		t.Errorf("Expected realm from env var, got %q", cfg.Auth.Realm)
	}
}

func TestMustLoad_MissingFile(t *testing.T) {
	if _, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := GetDefaultConfig()
	cfg.Auth.Realm = "saved.example.com"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Saved config missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 && os.PathSeparator == '/' {
		t.Errorf("Expected mode 0600, got %o", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Auth.Realm != "saved.example.com" {
		t.Errorf("Expected realm to survive save, got %q", loaded.Auth.Realm)
	}
	if loaded.Auth.VectorTTL != cfg.Auth.VectorTTL {
		t.Errorf("Expected vector_ttl %v, got %v", cfg.Auth.VectorTTL, loaded.Auth.VectorTTL)
	}
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	if got := GetConfigDir(); got != filepath.Join("/tmp/xdg", "sipauth") {
		t.Errorf("Expected $XDG_CONFIG_HOME/sipauth, got %q", got)
	}
	if filepath.Base(GetDefaultConfigPath()) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", GetDefaultConfigPath())
	}
}
