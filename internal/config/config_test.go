package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("unexpected addr: %s", cfg.Addr())
	}
	if cfg.Mode != "release" {
		t.Errorf("expected release mode, got %s", cfg.Mode)
	}
	if !cfg.History.Enabled {
		t.Error("expected history enabled by default")
	}
	if cfg.WebSocket.PingInterval != 30*time.Second || cfg.WebSocket.ReadTimeout != 60*time.Second {
		t.Errorf("unexpected websocket timing: %+v", cfg.WebSocket)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SLIDECAST_PORT", "9090")
	t.Setenv("SLIDECAST_MODE", "debug")
	t.Setenv("SLIDECAST_HISTORY_ENABLED", "false")
	t.Setenv("SLIDECAST_WEBSOCKET_SEND_BUFFER", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.Mode != "debug" {
		t.Errorf("expected debug mode, got %s", cfg.Mode)
	}
	if cfg.History.Enabled {
		t.Error("expected history disabled")
	}
	if cfg.WebSocket.SendBuffer != 50 {
		t.Errorf("expected send buffer 50, got %d", cfg.WebSocket.SendBuffer)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slidecast.yaml")
	content := []byte("port: 7070\nhistory:\n  path: /tmp/test-events.db\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("SLIDECAST_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Port)
	}
	if cfg.History.Path != "/tmp/test-events.db" {
		t.Errorf("unexpected history path: %s", cfg.History.Path)
	}
	// Untouched keys keep their defaults.
	if cfg.Host != "0.0.0.0" {
		t.Errorf("unexpected host: %s", cfg.Host)
	}
}

func TestLoadRejectsMissingConfigFile(t *testing.T) {
	t.Setenv("SLIDECAST_CONFIG_FILE", "/does/not/exist.yaml")
	if _, err := Load(); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Host:            "0.0.0.0",
			Port:            8080,
			Mode:            "release",
			ShutdownTimeout: 30 * time.Second,
			History:         HistoryConfig{Enabled: true, Path: "./events.db"},
			WebSocket: WebSocketConfig{
				PingInterval: 30 * time.Second,
				ReadTimeout:  60 * time.Second,
				WriteTimeout: 5 * time.Second,
				SendBuffer:   100,
				JoinTimeout:  10 * time.Second,
			},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("baseline config must validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"bad mode", func(c *Config) { c.Mode = "verbose" }},
		{"empty host", func(c *Config) { c.Host = "" }},
		{"history enabled without path", func(c *Config) { c.History.Path = "" }},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = 10 * time.Second }},
		{"zero send buffer", func(c *Config) { c.WebSocket.SendBuffer = 0 }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := base()
			c.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
