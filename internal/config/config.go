// ABOUTME: Configuration loading and parsing for the glint client
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultVerifyTimeout bounds the token verification call during session restore.
const defaultVerifyTimeout = 5 * time.Second

// Config represents the complete glint client configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds the remote API endpoint configuration
type ServerConfig struct {
	BaseURL       string        `yaml:"base_url"`
	VerifyTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	VerifyTimeoutRaw string `yaml:"verify_timeout"`
}

// CredentialsConfig holds local credential storage configuration
type CredentialsConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is given:
// the local dev server endpoint and credentials under ~/.glint.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			BaseURL:       "http://localhost:8787",
			VerifyTimeout: defaultVerifyTimeout,
		},
		Credentials: CredentialsConfig{
			Path: filepath.Join(home, ".glint", "credentials.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Credentials.Path == "" {
		return fmt.Errorf("credentials.path is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Server.VerifyTimeoutRaw == "" {
		cfg.Server.VerifyTimeout = defaultVerifyTimeout
		return nil
	}

	d, err := time.ParseDuration(cfg.Server.VerifyTimeoutRaw)
	if err != nil {
		return fmt.Errorf("parsing verify_timeout %q: %w", cfg.Server.VerifyTimeoutRaw, err)
	}
	cfg.Server.VerifyTimeout = d

	return nil
}
