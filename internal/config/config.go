// ABOUTME: Configuration loading and parsing for shipmate
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete shipmate configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	SSH      SSHConfig      `yaml:"ssh"`
	Agent    AgentConfig    `yaml:"agent"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds transcript database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SSHConfig holds SSH connection manager configuration
type SSHConfig struct {
	// ConfigPath is the JSON file where host configs are persisted
	ConfigPath string `yaml:"config_path"`

	ConnectTimeout time.Duration `yaml:"-"`
	ExecTimeout    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ConnectTimeoutRaw string `yaml:"connect_timeout"`
	ExecTimeoutRaw    string `yaml:"exec_timeout"`
}

// AgentConfig holds the Claude agent session configuration
type AgentConfig struct {
	Model        string `yaml:"model"`
	APIKey       string `yaml:"api_key"`
	SystemPrompt string `yaml:"system_prompt"`
	MaxTokens    int    `yaml:"max_tokens"`

	StartTimeout time.Duration `yaml:"-"`

	StartTimeoutRaw string `yaml:"start_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the config file omits a value.
const (
	DefaultHTTPAddr       = ":8000"
	DefaultModel          = "claude-sonnet-4-5"
	DefaultMaxTokens      = 4096
	DefaultConnectTimeout = 10 * time.Second
	DefaultExecTimeout    = 30 * time.Second
	DefaultStartTimeout   = 30 * time.Second
)

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

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
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

// parseDurations converts the raw duration strings into time.Duration fields.
// Empty strings are left as zero and filled in by applyDefaults.
func parseDurations(cfg *Config) error {
	parse := func(name, raw string, out *time.Duration) error {
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		*out = d
		return nil
	}

	if err := parse("ssh.connect_timeout", cfg.SSH.ConnectTimeoutRaw, &cfg.SSH.ConnectTimeout); err != nil {
		return err
	}
	if err := parse("ssh.exec_timeout", cfg.SSH.ExecTimeoutRaw, &cfg.SSH.ExecTimeout); err != nil {
		return err
	}
	if err := parse("agent.start_timeout", cfg.Agent.StartTimeoutRaw, &cfg.Agent.StartTimeout); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Agent.Model == "" {
		c.Agent.Model = DefaultModel
	}
	if c.Agent.MaxTokens == 0 {
		c.Agent.MaxTokens = DefaultMaxTokens
	}
	if c.SSH.ConnectTimeout == 0 {
		c.SSH.ConnectTimeout = DefaultConnectTimeout
	}
	if c.SSH.ExecTimeout == 0 {
		c.SSH.ExecTimeout = DefaultExecTimeout
	}
	if c.Agent.StartTimeout == 0 {
		c.Agent.StartTimeout = DefaultStartTimeout
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.SSH.ConfigPath == "" {
		return fmt.Errorf("ssh.config_path is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Agent.MaxTokens < 0 {
		return fmt.Errorf("agent.max_tokens must be positive")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	return nil
}
