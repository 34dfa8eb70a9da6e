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

// Default values applied when fields are absent from the config file.
const (
	DefaultServerHost           = "localhost"
	DefaultServerPort           = 5001
	DefaultSleepDuration        = 20 * time.Second
	DefaultMeasurementFrequency = 15 * time.Minute
	DefaultMeasurementLimit     = 30
	DefaultSourceTimeout        = 10 * time.Second
	DefaultMaxBackoff           = 5 * time.Minute
	DefaultPostRate             = 20.0
	DefaultHealthCheckFile      = "/tmp/health_check.txt"
)

// Config is the top-level collector configuration.
type Config struct {
	Collector CollectorConfig `yaml:"collector"`
}

// CollectorConfig holds all collector settings.
type CollectorConfig struct {
	// ServerHost and ServerPort locate the catalog/measurement API.
	ServerHost string `yaml:"server_host"`
	ServerPort int    `yaml:"server_port"`

	// ServerScheme is http or https.
	ServerScheme string `yaml:"server_scheme"`

	// SleepDuration is the pause between two catalog polls.
	SleepDuration time.Duration `yaml:"sleep_duration"`

	// MeasurementFrequency is how long a collected, unchanged metric waits
	// before it is collected again.
	MeasurementFrequency time.Duration `yaml:"measurement_frequency"`

	// MeasurementLimit is the batch size: the maximum number of metrics
	// collected concurrently in one cycle.
	MeasurementLimit int `yaml:"measurement_limit"`

	// SourceTimeout bounds each individual source fetch.
	SourceTimeout time.Duration `yaml:"source_timeout"`

	// MaxBackoff caps the sleep between failed catalog fetches.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// PostRate is the maximum number of measurement posts per second.
	PostRate float64 `yaml:"post_rate"`

	// HealthCheckFile receives the current timestamp every cycle.
	HealthCheckFile string `yaml:"health_check_file"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// ServerAuth configures how the collector authenticates to the server.
	ServerAuth AuthConfig `yaml:"server_auth"`
}

// ServerURL returns the base URL of the server API.
func (c CollectorConfig) ServerURL() string {
	return fmt.Sprintf("%s://%s:%d", c.ServerScheme, c.ServerHost, c.ServerPort)
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c CollectorConfig) SlogLevel() slog.Level {
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

// AuthConfig specifies how the collector authenticates to the server.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name to send the key in (default X-API-Key).
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or X-API-Key.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "X-API-Key"
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults, then environment
// variables override file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// FromEnv builds a Config from defaults and environment variables only.
func FromEnv() (*Config, error) {
	cfg := defaults()
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Collector: CollectorConfig{
			ServerHost:           DefaultServerHost,
			ServerPort:           DefaultServerPort,
			ServerScheme:         "http",
			SleepDuration:        DefaultSleepDuration,
			MeasurementFrequency: DefaultMeasurementFrequency,
			MeasurementLimit:     DefaultMeasurementLimit,
			SourceTimeout:        DefaultSourceTimeout,
			MaxBackoff:           DefaultMaxBackoff,
			PostRate:             DefaultPostRate,
			HealthCheckFile:      DefaultHealthCheckFile,
			LogLevel:             "info",
		},
	}
}

// applyEnv overrides config values with the environment variables that are set.
func applyEnv(cfg *Config) error {
	c := &cfg.Collector
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.ServerHost = v
	}
	if v := os.Getenv("SERVER_SCHEME"); v != "" {
		c.ServerScheme = v
	}
	if v := os.Getenv("HEALTH_CHECK_FILE"); v != "" {
		c.HealthCheckFile = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	ints := []struct {
		env string
		dst *int
	}{
		{"SERVER_PORT", &c.ServerPort},
		{"COLLECTOR_MEASUREMENT_LIMIT", &c.MeasurementLimit},
	}
	for _, e := range ints {
		if v := os.Getenv(e.env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.env, err)
			}
			*e.dst = n
		}
	}
	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"COLLECTOR_SLEEP_DURATION", &c.SleepDuration},
		{"COLLECTOR_MEASUREMENT_FREQUENCY", &c.MeasurementFrequency},
		{"COLLECTOR_SOURCE_TIMEOUT", &c.SourceTimeout},
		{"COLLECTOR_MAX_BACKOFF", &c.MaxBackoff},
	}
	for _, e := range durations {
		if v := os.Getenv(e.env); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.env, err)
			}
			*e.dst = d
		}
	}
	return nil
}

// parseDuration accepts Go duration strings ("30s") and bare integers, which
// are read as seconds ("30").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	c := cfg.Collector
	if c.ServerHost == "" {
		return fmt.Errorf("collector.server_host is required")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("collector.server_port %d is out of range [1, 65535]", c.ServerPort)
	}
	switch c.ServerScheme {
	case "http", "https":
	default:
		return fmt.Errorf("collector.server_scheme %q unknown: want http|https", c.ServerScheme)
	}
	if c.SleepDuration <= 0 {
		return fmt.Errorf("collector.sleep_duration must be positive")
	}
	if c.MeasurementFrequency <= 0 {
		return fmt.Errorf("collector.measurement_frequency must be positive")
	}
	if c.MeasurementLimit <= 0 {
		return fmt.Errorf("collector.measurement_limit must be positive")
	}
	if c.SourceTimeout <= 0 {
		return fmt.Errorf("collector.source_timeout must be positive")
	}
	if c.MaxBackoff <= 0 {
		return fmt.Errorf("collector.max_backoff must be positive")
	}
	if c.PostRate <= 0 {
		return fmt.Errorf("collector.post_rate must be positive")
	}
	switch c.ServerAuth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("collector.server_auth.mode %q unknown: want apikey|none", c.ServerAuth.Mode)
	}
	return nil
}
