// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "shipmate.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

ssh:
  config_path: "./ssh_configs.json"
  connect_timeout: "5s"
  exec_timeout: "1m"

agent:
  model: "claude-sonnet-4-5"
  api_key: "sk-test"
  max_tokens: 2048
  start_timeout: "45s"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.SSH.ConnectTimeout != 5*time.Second {
		t.Errorf("SSH.ConnectTimeout = %v, want %v", cfg.SSH.ConnectTimeout, 5*time.Second)
	}
	if cfg.SSH.ExecTimeout != time.Minute {
		t.Errorf("SSH.ExecTimeout = %v, want %v", cfg.SSH.ExecTimeout, time.Minute)
	}
	if cfg.Agent.StartTimeout != 45*time.Second {
		t.Errorf("Agent.StartTimeout = %v, want %v", cfg.Agent.StartTimeout, 45*time.Second)
	}
	if cfg.Agent.MaxTokens != 2048 {
		t.Errorf("Agent.MaxTokens = %d, want 2048", cfg.Agent.MaxTokens)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

ssh:
  config_path: "./ssh_configs.json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want default %q", cfg.Server.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Agent.Model != DefaultModel {
		t.Errorf("Agent.Model = %q, want default %q", cfg.Agent.Model, DefaultModel)
	}
	if cfg.Agent.MaxTokens != DefaultMaxTokens {
		t.Errorf("Agent.MaxTokens = %d, want default %d", cfg.Agent.MaxTokens, DefaultMaxTokens)
	}
	if cfg.SSH.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("SSH.ConnectTimeout = %v, want default %v", cfg.SSH.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.SSH.ExecTimeout != DefaultExecTimeout {
		t.Errorf("SSH.ExecTimeout = %v, want default %v", cfg.SSH.ExecTimeout, DefaultExecTimeout)
	}
	if cfg.Agent.StartTimeout != DefaultStartTimeout {
		t.Errorf("Agent.StartTimeout = %v, want default %v", cfg.Agent.StartTimeout, DefaultStartTimeout)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("SHIPMATE_TEST_API_KEY", "sk-from-env")

	configPath := writeConfig(t, `
database:
  path: "./test.db"

ssh:
  config_path: "./ssh_configs.json"

agent:
  api_key: "${SHIPMATE_TEST_API_KEY}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Agent.APIKey != "sk-from-env" {
		t.Errorf("Agent.APIKey = %q, want %q", cfg.Agent.APIKey, "sk-from-env")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

ssh:
  config_path: "./ssh_configs.json"
  exec_timeout: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "exec_timeout") {
		t.Errorf("error %q does not mention exec_timeout", err.Error())
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "missing ssh config path",
			content: `
database:
  path: "./test.db"
`,
			want: "ssh.config_path",
		},
		{
			name: "missing database path",
			content: `
ssh:
  config_path: "./ssh_configs.json"
`,
			want: "database.path",
		},
		{
			name: "bad logging level",
			content: `
database:
  path: "./test.db"
ssh:
  config_path: "./ssh_configs.json"
logging:
  level: "verbose"
`,
			want: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}
