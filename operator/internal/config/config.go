package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultServerURL    = "http://localhost:8080"
	DefaultGRPCEndpoint = "localhost:50051"
	DefaultTimeout      = 10 * time.Second
)

// Config is the top-level configuration file. Only the operator section is
// decoded; the server section is ignored.
type Config struct {
	Operator OperatorConfig `yaml:"operator"`
}

// OperatorConfig holds all portwatchctl settings.
type OperatorConfig struct {
	// ServerURL is the base URL of the portwatch REST API.
	ServerURL string `yaml:"server_url"`

	// GRPCEndpoint is the host:port of the reservation service.
	GRPCEndpoint string `yaml:"grpc_endpoint"`

	// Name identifies the operator on reservations and issues.
	Name string `yaml:"name"`

	// Timeout bounds every single request.
	Timeout time.Duration `yaml:"timeout"`

	Hold HoldConfig `yaml:"hold"`
	Auth AuthConfig `yaml:"auth"`
}

// HoldConfig controls `reserve --hold`.
type HoldConfig struct {
	// RenewInterval is how often a held reservation is renewed. Zero means
	// half of the lease duration granted by the server.
	RenewInterval time.Duration `yaml:"renew_interval"`
}

// AuthConfig specifies how portwatchctl authenticates to the server.
type AuthConfig struct {
	// Mode is one of: apikey | mtls | none.
	Mode string `yaml:"mode"`

	// API key fields, used when Mode == "apikey".
	// Header is the HTTP header and gRPC metadata key to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// InsecureSkipVerify disables certificate verification for https
	// server URLs. Only for internal CAs in development.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return strings.ToLower(a.Header)
	}
	return "x-api-key"
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a config document.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := defaults()
	_ = validate(cfg)
	return cfg
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Operator: OperatorConfig{
			ServerURL:    DefaultServerURL,
			GRPCEndpoint: DefaultGRPCEndpoint,
			Timeout:      DefaultTimeout,
		},
	}
}

// validate checks required fields and fills the operator name from $USER.
func validate(cfg *Config) error {
	op := &cfg.Operator

	op.ServerURL = strings.TrimRight(strings.TrimSpace(op.ServerURL), "/")
	u, err := url.Parse(op.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("operator.server_url must be an http(s) URL, got %q", op.ServerURL)
	}
	if strings.TrimSpace(op.GRPCEndpoint) == "" {
		return fmt.Errorf("operator.grpc_endpoint is required")
	}
	if op.Timeout <= 0 {
		return fmt.Errorf("operator.timeout must be positive")
	}
	if op.Hold.RenewInterval < 0 {
		return fmt.Errorf("operator.hold.renew_interval must not be negative")
	}

	switch op.Auth.Mode {
	case "", "none":
	case "apikey":
		if op.Auth.KeyEnv == "" {
			return fmt.Errorf("operator.auth.key_env is required for apikey mode")
		}
	case "mtls":
		if op.Auth.CertFile == "" || op.Auth.KeyFile == "" {
			return fmt.Errorf("operator.auth.cert_file and key_file are required for mtls mode")
		}
	default:
		return fmt.Errorf("operator.auth: unknown mode %q", op.Auth.Mode)
	}

	op.Name = strings.TrimSpace(op.Name)
	if op.Name == "" {
		op.Name = os.Getenv("USER")
	}
	return nil
}
