package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all relay server settings.
type Config struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	History   HistoryConfig   `mapstructure:"history"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

// HistoryConfig controls the sqlite relay event log. The log is purely
// observational; disabling it changes nothing about relay behavior.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// WebSocketConfig tunes transport heartbeats and buffering.
type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	JoinTimeout  time.Duration `mapstructure:"join_timeout"`
}

// Load builds the configuration with precedence file > environment >
// defaults. The optional YAML file comes from SLIDECAST_CONFIG_FILE; every
// key is also overridable as SLIDECAST_<KEY> with dots as underscores
// (e.g. SLIDECAST_WEBSOCKET_PING_INTERVAL).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("mode", "release")
	v.SetDefault("shutdown_timeout", "30s")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "./slidecast-events.db")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.read_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "5s")
	v.SetDefault("websocket.send_buffer", 100)
	v.SetDefault("websocket.join_timeout", "10s")

	v.SetEnvPrefix("SLIDECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("SLIDECAST_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Mode != "release" && c.Mode != "debug" {
		return fmt.Errorf("mode must be 'release' or 'debug'")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history path cannot be empty when history is enabled")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket write timeout must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket send buffer must be positive")
	}
	if c.WebSocket.JoinTimeout <= 0 {
		return fmt.Errorf("websocket join timeout must be positive")
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
