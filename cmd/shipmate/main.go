// ABOUTME: Entry point for the shipmate server
// ABOUTME: Wires config, SSH manager, agent bridge, transcript store, and HTTP API

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/shipmate/internal/api"
	"github.com/2389/shipmate/internal/bridge"
	"github.com/2389/shipmate/internal/claude"
	"github.com/2389/shipmate/internal/config"
	"github.com/2389/shipmate/internal/sshmgr"
	"github.com/2389/shipmate/internal/store"
	"github.com/2389/shipmate/internal/tools"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _     _                       _
 ___| |__ (_)_ __  _ __ ___   __ _| |_ ___
/ __| '_ \| | '_ \| '_ ' _ \ / _' | __/ _ \
\__ \ | | | | |_) | | | | | | (_| | ||  __/
|___/_| |_|_| .__/|_| |_| |_|\__,_|\__\___|
            |_|
`

// getConfigPath returns the path to the shipmate config file.
// Priority: SHIPMATE_CONFIG env var > XDG_CONFIG_HOME/shipmate/shipmate.yaml > ~/.config/shipmate/shipmate.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SHIPMATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "shipmate.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "shipmate", "shipmate.yaml")
}

// getDataPath returns the shipmate data directory.
// Priority: XDG_DATA_HOME/shipmate > ~/.local/share/shipmate
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "shipmate")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: shipmate <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the server")
		fmt.Println("  init    Create a default config file")
		fmt.Println("  health  Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config: %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:   %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Model:  %s\n", cfg.Agent.Model)
	fmt.Println()

	logger.Info("starting shipmate",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"model", cfg.Agent.Model,
	)

	mgr, err := sshmgr.NewManager(sshmgr.Options{
		ConfigPath:     cfg.SSH.ConfigPath,
		ConnectTimeout: cfg.SSH.ConnectTimeout,
		ExecTimeout:    cfg.SSH.ExecTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating ssh manager: %w", err)
	}
	defer mgr.CloseAll()

	registry := tools.NewRegistry(logger)
	if err := tools.RegisterSSHTools(registry, mgr); err != nil {
		return fmt.Errorf("registering ssh tools: %w", err)
	}

	runtime := claude.NewRuntime(claude.Options{
		Model:        cfg.Agent.Model,
		APIKey:       cfg.Agent.APIKey,
		SystemPrompt: cfg.Agent.SystemPrompt,
		MaxTokens:    cfg.Agent.MaxTokens,
	}, registry, logger)

	b := bridge.New(runtime, cfg.Agent.StartTimeout, logger)
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("closing agent bridge", "error", err)
		}
	}()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening transcript store: %w", err)
	}
	defer st.Close()

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: api.NewServer(b, mgr, st, logger).Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	dataPath := getDataPath()
	content := fmt.Sprintf(`server:
  http_addr: ":8000"

database:
  path: %q

ssh:
  config_path: %q
  connect_timeout: 10s
  exec_timeout: 30s

agent:
  model: claude-sonnet-4-5
  api_key: ${ANTHROPIC_API_KEY}
  max_tokens: 4096
  start_timeout: 30s

logging:
  level: info
  format: text
`, filepath.Join(dataPath, "shipmate.db"), filepath.Join(dataPath, "ssh_config.json"))

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("Wrote %s\n", configPath)
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/health", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{level: level}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// colorHandler writes compact colorized log lines for interactive use.
type colorHandler struct {
	mu    sync.Mutex
	level slog.Level
	attrs []slog.Attr
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString(color.CyanString("INF "))
	}

	buf.WriteString(r.Message)

	writeAttr := func(a slog.Attr) {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(a)
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(merged, h.attrs)
	merged = append(merged, attrs...)
	return &colorHandler{level: h.level, attrs: merged}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	// Groups are rare in this codebase; flatten them.
	return h
}
