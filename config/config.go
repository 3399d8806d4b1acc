// Package config loads and validates server configuration. Configuration
// is layered: compiled defaults, then JSON files in the order added, then
// CUBESTREAM_* environment overrides on top.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/c360/cubestream/pkg/security"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Data      DataConfig      `json:"data"`
	NATS      NATSConfig      `json:"nats"`
	Jobs      JobsConfig      `json:"jobs"`
	Animation AnimationConfig `json:"animation"`
	Stream    StreamConfig    `json:"stream"`
	Log       LogConfig       `json:"log"`
}

// ServerConfig defines the websocket listener.
type ServerConfig struct {
	ListenAddr     string        `json:"listen_addr"`
	MetricsAddr    string        `json:"metrics_addr,omitempty"`
	ReadTimeout    time.Duration `json:"read_timeout,omitempty"`
	WriteTimeout   time.Duration `json:"write_timeout,omitempty"`
	IdleTimeout    time.Duration `json:"idle_timeout,omitempty"`
	MaxMessageSize int64         `json:"max_message_size,omitempty"`
	AllowedOrigins []string      `json:"allowed_origins,omitempty"`

	TLS security.ServerTLSConfig `json:"tls,omitempty"`
}

// DataConfig locates the image data served to clients.
type DataConfig struct {
	Root string `json:"root"`
}

// NATSConfig defines the snapshot store connection. With Enabled=false
// snapshots live in process memory and do not survive restarts.
type NATSConfig struct {
	Enabled       bool          `json:"enabled"`
	URLs          []string      `json:"urls,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
}

// JobsConfig sizes the per-session computation pool.
type JobsConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
}

// AnimationConfig tunes playback flow control.
type AnimationConfig struct {
	WindowSize       int     `json:"window_size,omitempty"`
	DefaultFrameRate float64 `json:"default_frame_rate,omitempty"`
}

// StreamConfig sizes the per-session outbound queues.
type StreamConfig struct {
	ControlCapacity  int `json:"control_capacity,omitempty"`
	DataCapacity     int `json:"data_capacity,omitempty"`
	ProgressCapacity int `json:"progress_capacity,omitempty"`
}

// LogConfig selects logging output.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // text, json
}

// Defaults returns the compiled-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     ":3002",
			MetricsAddr:    ":9090",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    5 * time.Minute,
			MaxMessageSize: 64 * 1024 * 1024,
		},
		Data: DataConfig{Root: "."},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Jobs:      JobsConfig{Workers: 4, QueueSize: 64},
		Animation: AnimationConfig{WindowSize: 2, DefaultFrameRate: 5},
		Stream: StreamConfig{
			ControlCapacity:  256,
			DataCapacity:     1024,
			ProgressCapacity: 64,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}
	if _, _, err := net.SplitHostPort(c.Server.ListenAddr); err != nil {
		return fmt.Errorf("server.listen_addr: %w", err)
	}
	if c.Server.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.Server.MetricsAddr); err != nil {
			return fmt.Errorf("server.metrics_addr: %w", err)
		}
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return errors.New("server.tls requires cert_file and key_file")
		}
	}
	if c.Server.MaxMessageSize < 0 {
		return errors.New("server.max_message_size cannot be negative")
	}
	if c.Data.Root == "" {
		return errors.New("data.root is required")
	}
	if c.NATS.Enabled && len(c.NATS.URLs) == 0 {
		return errors.New("nats.urls is required when nats is enabled")
	}
	if c.Jobs.Workers < 0 || c.Jobs.QueueSize < 0 {
		return errors.New("jobs sizes cannot be negative")
	}
	if c.Animation.WindowSize < 0 {
		return errors.New("animation.window_size cannot be negative")
	}
	if c.Animation.DefaultFrameRate < 0 {
		return errors.New("animation.default_frame_rate cannot be negative")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Redacted returns a copy safe for logging, with credentials masked.
func (c *Config) Redacted() *Config {
	clone := c.Clone()
	if clone.NATS.Password != "" {
		clone.NATS.Password = "[redacted]"
	}
	if clone.NATS.Token != "" {
		clone.NATS.Token = "[redacted]"
	}
	return clone
}

// String renders the redacted configuration as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}

// SafeConfig provides thread-safe access to a configuration that may be
// replaced at runtime.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps a configuration.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Defaults()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	sc.mu.Lock()
	sc.config = cfg
	sc.mu.Unlock()
	return nil
}
