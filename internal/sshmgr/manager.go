// ABOUTME: SSH connection manager tracking live connections and persisted host configs
// ABOUTME: Provides connect/execute/disconnect operations used by the API and agent tools

package sshmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// ErrNotConnected indicates a command was issued against a host without a live connection.
var ErrNotConnected = errors.New("host not connected")

// ErrNotFound indicates the specified host config does not exist.
var ErrNotFound = errors.New("host config not found")

// HostConfig is the persisted configuration for one host.
// Passwords are stored in plaintext in the config file; this mirrors the
// deployment model (single-user, local config) and is a documented weakness.
type HostConfig struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Password string `json:"password"`
	Port     int    `json:"port"`
}

// HostInfo describes a configured host and whether it currently has a live connection.
type HostInfo struct {
	ID        string `json:"id"`
	Host      string `json:"host"`
	Username  string `json:"username"`
	Port      int    `json:"port"`
	Connected bool   `json:"connected"`
}

// ExecResult holds the captured output of one remote command.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Options configures a Manager.
type Options struct {
	// ConfigPath is the JSON file where host configs are persisted.
	ConfigPath string

	// ConnectTimeout bounds the TCP/handshake phase of Connect.
	ConnectTimeout time.Duration

	// ExecTimeout bounds each remote command.
	ExecTimeout time.Duration

	// Dialer establishes connections. Defaults to the golang.org/x/crypto/ssh
	// password dialer; tests inject a fake.
	Dialer Dialer
}

// Manager owns all live SSH connections and the persisted host configs.
// It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	conns   map[string]Client
	configs map[string]HostConfig

	configPath     string
	connectTimeout time.Duration
	execTimeout    time.Duration
	dialer         Dialer
	logger         *slog.Logger
}

// NewManager creates a Manager and loads any persisted host configs.
// A missing config file is not an error; it is created on first connect.
func NewManager(opts Options, logger *slog.Logger) (*Manager, error) {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ExecTimeout == 0 {
		opts.ExecTimeout = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &passwordDialer{connectTimeout: opts.ConnectTimeout}
	}

	m := &Manager{
		conns:          make(map[string]Client),
		configs:        make(map[string]HostConfig),
		configPath:     opts.ConfigPath,
		connectTimeout: opts.ConnectTimeout,
		execTimeout:    opts.ExecTimeout,
		dialer:         opts.Dialer,
		logger:         logger.With("component", "sshmgr"),
	}

	if err := m.loadConfigs(); err != nil {
		return nil, err
	}
	return m, nil
}

// loadConfigs reads the persisted host configs from disk.
func (m *Manager) loadConfigs() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading host configs: %w", err)
	}

	if err := json.Unmarshal(data, &m.configs); err != nil {
		return fmt.Errorf("parsing host configs: %w", err)
	}

	m.logger.Info("host configs loaded", "path", m.configPath, "hosts", len(m.configs))
	return nil
}

// saveConfigs rewrites the config file. Caller must hold m.mu.
func (m *Manager) saveConfigs() error {
	data, err := json.MarshalIndent(m.configs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding host configs: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("writing host configs: %w", err)
	}
	return nil
}

// Connect establishes an SSH connection to the given host and persists its config.
// Connecting an id that is already connected is a no-op success.
func (m *Manager) Connect(id, host, username, password string, port int) (string, error) {
	if port == 0 {
		port = 22
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.connectLocked(id, HostConfig{
		Host:     host,
		Username: username,
		Password: password,
		Port:     port,
	})
}

// ConnectByID reconnects a host from its persisted config.
// Returns ErrNotFound if no config exists for the id.
func (m *Manager) ConnectByID(id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.configs[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.connectLocked(id, cfg)
}

// connectLocked dials and registers a host under m.mu. The config lookup,
// dial, and registration form one critical section so a concurrent delete
// cannot interleave and be re-persisted.
func (m *Manager) connectLocked(id string, cfg HostConfig) (string, error) {
	if _, ok := m.conns[id]; ok {
		return fmt.Sprintf("host %s already connected", id), nil
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client, err := m.dialer.Dial(addr, cfg.Username, cfg.Password)
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", addr, err)
	}

	m.conns[id] = client
	m.configs[id] = cfg

	if err := m.saveConfigs(); err != nil {
		// Connection is live; losing persistence is not fatal.
		m.logger.Warn("failed to persist host config", "host_id", id, "error", err)
	}

	m.logger.Info("host connected", "host_id", id, "addr", addr, "user", cfg.Username)
	return fmt.Sprintf("connected to %s (%s@%s:%d)", id, cfg.Username, cfg.Host, cfg.Port), nil
}

// Execute runs a command on a connected host and captures its output.
// Returns ErrNotConnected if the host has no live connection.
// The command is bounded by the manager's exec timeout.
func (m *Manager) Execute(ctx context.Context, id, command string) (*ExecResult, error) {
	m.mu.Lock()
	client, ok := m.conns[id]
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, id)
	}

	ctx, cancel := context.WithTimeout(ctx, m.execTimeout)
	defer cancel()

	result, err := client.Run(ctx, command)
	if err != nil {
		return nil, fmt.Errorf("executing command on %s: %w", id, err)
	}

	m.logger.Debug("command executed",
		"host_id", id,
		"exit_code", result.ExitCode,
		"stdout_bytes", len(result.Stdout),
		"stderr_bytes", len(result.Stderr),
	)
	return result, nil
}

// Disconnect closes the live connection for a host, if any.
// The persisted config is kept.
func (m *Manager) Disconnect(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.conns[id]
	if !ok {
		return fmt.Sprintf("host %s not connected", id)
	}

	if err := client.Close(); err != nil {
		m.logger.Warn("closing connection", "host_id", id, "error", err)
	}
	delete(m.conns, id)

	m.logger.Info("host disconnected", "host_id", id)
	return fmt.Sprintf("disconnected from %s", id)
}

// DeleteConfig removes a host config and closes its connection if live.
func (m *Manager) DeleteConfig(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, ok := m.conns[id]; ok {
		if err := client.Close(); err != nil {
			m.logger.Warn("closing connection", "host_id", id, "error", err)
		}
		delete(m.conns, id)
	}

	if _, ok := m.configs[id]; !ok {
		return fmt.Sprintf("no config for %s", id)
	}

	delete(m.configs, id)
	if err := m.saveConfigs(); err != nil {
		m.logger.Warn("failed to persist host config removal", "host_id", id, "error", err)
	}
	return fmt.Sprintf("deleted config for %s", id)
}

// ListAll returns every configured host with its liveness flag, sorted by id.
func (m *Manager) ListAll() []HostInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	hosts := make([]HostInfo, 0, len(m.configs))
	for id, cfg := range m.configs {
		_, connected := m.conns[id]
		hosts = append(hosts, HostInfo{
			ID:        id,
			Host:      cfg.Host,
			Username:  cfg.Username,
			Port:      cfg.Port,
			Connected: connected,
		})
	}

	sort.Slice(hosts, func(i, j int) bool { return hosts[i].ID < hosts[j].ID })
	return hosts
}

// ListConnected returns only hosts with a live connection, sorted by id.
func (m *Manager) ListConnected() []HostInfo {
	all := m.ListAll()
	connected := all[:0]
	for _, h := range all {
		if h.Connected {
			connected = append(connected, h)
		}
	}
	return connected
}

// CloseAll closes every live connection. Configs are kept.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, client := range m.conns {
		if err := client.Close(); err != nil {
			m.logger.Warn("closing connection", "host_id", id, "error", err)
		}
		delete(m.conns, id)
	}
}
