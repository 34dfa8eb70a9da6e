package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort        = 5001
	DefaultCatalogPath     = "catalog.yaml"
	DefaultStorageBackend  = "memory"
	DefaultDatabasePath    = "qualitypulse.db"
	DefaultOrphanRetention = 7 * 24 * time.Hour
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket stream listen on.
	HTTPPort int `yaml:"http_port"`

	// CatalogPath is the YAML file defining reports, metrics and sources.
	CatalogPath string `yaml:"catalog_path"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Auth configures how the server authenticates measurement writers.
	Auth AuthConfig `yaml:"auth"`

	// Storage selects the measurement store.
	Storage StorageConfig `yaml:"storage"`

	// Entities controls entity annotation lifecycle.
	Entities EntitiesConfig `yaml:"entities"`

	// Notify holds status-change webhook targets.
	Notify NotifyConfig `yaml:"notify"`
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c ServerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "X-API-Key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "X-API-Key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "X-API-Key"
}

// StorageConfig selects and configures the measurement store.
type StorageConfig struct {
	// Backend is one of: memory | sqlite.
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Used when Backend == "sqlite".
	Path string `yaml:"path"`
}

// EntitiesConfig controls entity annotation lifecycle.
type EntitiesConfig struct {
	// OrphanRetention is how long an annotation of an entity that no longer
	// appears in the source data is kept before it is deleted.
	OrphanRetention time.Duration `yaml:"orphan_retention"`
}

// NotifyConfig holds status-change notification targets.
type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	return finish(cfg)
}

// FromEnv builds a Config from defaults and environment variables only.
func FromEnv() (*Config, error) {
	return finish(defaults())
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:    DefaultHTTPPort,
			CatalogPath: DefaultCatalogPath,
			LogLevel:    "info",
			Storage: StorageConfig{
				Backend: DefaultStorageBackend,
				Path:    DefaultDatabasePath,
			},
			Entities: EntitiesConfig{
				OrphanRetention: DefaultOrphanRetention,
			},
		},
	}
}

// applyEnv overrides config values with the environment variables that are set.
func applyEnv(cfg *Config) error {
	s := &cfg.Server
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		s.HTTPPort = port
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		s.Storage.Backend = "sqlite"
		s.Storage.Path = v
	}
	if v := os.Getenv("CATALOG_PATH"); v != "" {
		s.CatalogPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	return nil
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.CatalogPath == "" {
		return fmt.Errorf("server.catalog_path is required")
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	switch s.Storage.Backend {
	case "memory":
	case "sqlite":
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want memory|sqlite", s.Storage.Backend)
	}
	if s.Entities.OrphanRetention < 0 {
		return fmt.Errorf("server.entities.orphan_retention must not be negative")
	}
	for i, w := range s.Notify.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.notify.webhooks[%d].type %q unknown: want slack|teams|http", i, w.Type)
		}
	}
	return nil
}
