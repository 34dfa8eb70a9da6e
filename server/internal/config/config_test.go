package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Only the collector section; server section absent.
	p := writeConfig(t, `collector:
  server_host: "localhost"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.CatalogPath != DefaultCatalogPath {
		t.Errorf("catalog_path: got %q, want %q", s.CatalogPath, DefaultCatalogPath)
	}
	if s.Storage.Backend != "memory" {
		t.Errorf("storage.backend: got %q, want memory", s.Storage.Backend)
	}
	if s.Entities.OrphanRetention != DefaultOrphanRetention {
		t.Errorf("orphan_retention: got %v, want %v", s.Entities.OrphanRetention, DefaultOrphanRetention)
	}
	if s.SlogLevel() != slog.LevelInfo {
		t.Errorf("log level: got %v, want info", s.SlogLevel())
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9091
  catalog_path: /etc/qp/catalog.yaml
  log_level: debug
  auth:
    mode: apikey
    key_env: MY_KEY
    header: X-QP-Key
  storage:
    backend: sqlite
    path: /var/lib/qp.db
  entities:
    orphan_retention: 720h
  notify:
    webhooks:
      - type: slack
        url_env: SLACK_URL
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != 9091 {
		t.Errorf("http_port: got %d, want 9091", s.HTTPPort)
	}
	if s.Auth.EffectiveHeader() != "X-QP-Key" {
		t.Errorf("header: got %q, want X-QP-Key", s.Auth.EffectiveHeader())
	}
	if s.Storage.Backend != "sqlite" || s.Storage.Path != "/var/lib/qp.db" {
		t.Errorf("storage: got %+v", s.Storage)
	}
	if s.Entities.OrphanRetention != 30*24*time.Hour {
		t.Errorf("orphan_retention: got %v, want 720h", s.Entities.OrphanRetention)
	}
	if len(s.Notify.Webhooks) != 1 || s.Notify.Webhooks[0].Type != "slack" {
		t.Errorf("webhooks: got %+v", s.Notify.Webhooks)
	}
	if s.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level: got %v, want debug", s.SlogLevel())
	}
}

func TestLoad_DefaultHeader(t *testing.T) {
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: K
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h := cfg.Server.Auth.EffectiveHeader(); h != "X-API-Key" {
		t.Errorf("EffectiveHeader: got %q, want X-API-Key", h)
	}
}

func TestLoad_KeyEnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	t.Setenv("TEST_HOOK_URL", "https://hooks.example/x")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
  notify:
    webhooks:
      - type: http
        url_env: TEST_HOOK_URL
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q, want supersecret", k)
	}
	if u := cfg.Server.Notify.Webhooks[0].URL(); u != "https://hooks.example/x" {
		t.Errorf("URL(): got %q", u)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("DATABASE_PATH", "/tmp/qp.db")
	t.Setenv("CATALOG_PATH", "/tmp/catalog.yaml")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != 7000 {
		t.Errorf("http_port: got %d, want 7000", s.HTTPPort)
	}
	if s.Storage.Backend != "sqlite" || s.Storage.Path != "/tmp/qp.db" {
		t.Errorf("storage: got %+v, want sqlite at /tmp/qp.db", s.Storage)
	}
	if s.CatalogPath != "/tmp/catalog.yaml" {
		t.Errorf("catalog_path: got %q", s.CatalogPath)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown auth mode", "server:\n  auth:\n    mode: oauth2\n"},
		{"port out of range", "server:\n  http_port: 70000\n"},
		{"unknown backend", "server:\n  storage:\n    backend: mongo\n"},
		{"sqlite without path", "server:\n  storage:\n    backend: sqlite\n    path: \"\"\n"},
		{"negative retention", "server:\n  entities:\n    orphan_retention: -1h\n"},
		{"unknown webhook", "server:\n  notify:\n    webhooks:\n      - type: pagerduty\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_BadEnvPort(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for non-numeric SERVER_PORT")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
