package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`

	// Interval is how often the board is evaluated against the rules.
	Interval time.Duration `yaml:"interval"`
}

// AlertRule defines one condition evaluated against every portfolio status.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "hours_since_activity >= 4",
	// "band == 4h+", "locked == true", "checked == false".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
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

// Default values for the server configuration.
const (
	DefaultGRPCPort       = 50051
	DefaultHTTPPort       = 8080
	DefaultLogLevel       = "info"
	DefaultTimezone       = "UTC"
	DefaultLeaseDuration  = 5 * time.Minute
	DefaultSweepInterval  = 30 * time.Second
	DefaultLeaseBackend   = "memory"
	DefaultStorePath      = "data/portwatch.db"
	DefaultBoardInterval  = 5 * time.Second
	DefaultAlertsInterval = time.Minute
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `operator:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	GRPCPort int    `yaml:"grpc_port"`
	HTTPPort int    `yaml:"http_port"`
	LogLevel string `yaml:"log_level"`

	// Timezone decides which hour is "current" and where coverage days start.
	Timezone string `yaml:"timezone"`

	Auth   AuthConfig   `yaml:"auth"`
	Lease  LeaseConfig  `yaml:"lease"`
	Store  StoreConfig  `yaml:"store"`
	Board  BoardConfig  `yaml:"board"`
	Alerts AlertsConfig `yaml:"alerts"`

	// Portfolios are created on startup when missing. Existing portfolios
	// keep their review flag and lock.
	Portfolios []PortfolioSeed `yaml:"portfolios"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// LeaseConfig controls reservations.
type LeaseConfig struct {
	Duration      time.Duration `yaml:"duration"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Backend is "memory" for a single server or "sqlite" to share the
	// reservation table through the store's database file.
	Backend string `yaml:"backend"`
}

// StoreConfig locates the activity database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// BoardConfig controls the WebSocket push.
type BoardConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// PortfolioSeed is one provisioned portfolio.
type PortfolioSeed struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Location returns the configured zone. Validation guarantees it loads.
func (s ServerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlogLevel returns the configured log level.
func (s ServerConfig) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config { return defaults() }

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			LogLevel: DefaultLogLevel,
			Timezone: DefaultTimezone,
			Lease: LeaseConfig{
				Duration:      DefaultLeaseDuration,
				SweepInterval: DefaultSweepInterval,
				Backend:       DefaultLeaseBackend,
			},
			Store: StoreConfig{
				Path: DefaultStorePath,
			},
			Board: BoardConfig{
				Interval: DefaultBoardInterval,
			},
			Alerts: AlertsConfig{
				Interval: DefaultAlertsInterval,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := &cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("server.timezone %q: %w", s.Timezone, err)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Auth.Mode == "apikey" && s.Auth.KeyEnv == "" {
		return fmt.Errorf("server.auth.key_env is required when mode is apikey")
	}

	if s.Lease.Duration <= 0 {
		return fmt.Errorf("server.lease.duration must be positive")
	}
	if s.Lease.SweepInterval <= 0 {
		return fmt.Errorf("server.lease.sweep_interval must be positive")
	}
	switch s.Lease.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("server.lease.backend %q unknown: want memory|sqlite", s.Lease.Backend)
	}
	if strings.TrimSpace(s.Store.Path) == "" {
		return fmt.Errorf("server.store.path must not be empty")
	}
	if s.Board.Interval <= 0 {
		return fmt.Errorf("server.board.interval must be positive")
	}
	if s.Alerts.Interval <= 0 {
		return fmt.Errorf("server.alerts.interval must be positive")
	}

	for i, r := range s.Alerts.Rules {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("server.alerts.rules[%d].name is required", i)
		}
		if len(strings.Fields(r.Condition)) != 3 {
			return fmt.Errorf("server.alerts.rules[%d].condition %q: want \"field op value\"", i, r.Condition)
		}
		switch r.Severity {
		case "", "critical", "warning", "info":
		default:
			return fmt.Errorf("server.alerts.rules[%d].severity %q unknown", i, r.Severity)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d].type %q unknown: want slack|teams|http", i, w.Type)
		}
	}

	seen := make(map[string]bool, len(s.Portfolios))
	for i, p := range s.Portfolios {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("server.portfolios[%d].id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("server.portfolios[%d].id %q is duplicated", i, id)
		}
		seen[id] = true
	}
	return nil
}
