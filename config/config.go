// Package config loads and saves the server configuration as JSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/cyberinferno/go-slp/connection"
	"github.com/cyberinferno/go-slp/scheduler"
	"github.com/cyberinferno/go-slp/status"
	"github.com/cyberinferno/go-slp/stream"
)

// DefaultConfigFile is the file name used when only a directory is given.
const DefaultConfigFile = "slp.json"

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Status  StatusConfig  `json:"status"`
	Cache   CacheConfig   `json:"cache"`
	Monitor MonitorConfig `json:"monitor"`
	Logging LoggingConfig `json:"logging"`

	path string
}

// ServerConfig controls the listener and the tick loop.
type ServerConfig struct {
	ListenAddress  string `json:"listen_address"`
	TickRate       int    `json:"tick_rate"`
	TimeoutTicks   uint32 `json:"timeout_ticks"`
	WriteTimeoutMs int    `json:"write_timeout_ms"`

	// AcceptRate is the sustained number of new connections per second; 0
	// disables the limit.
	AcceptRate  float64 `json:"accept_rate"`
	AcceptBurst int     `json:"accept_burst"`
}

// StatusConfig is what the server advertises.
type StatusConfig struct {
	MOTD               string `json:"motd"`
	VersionName        string `json:"version_name"`
	Protocol           uint64 `json:"protocol"`
	MaxPlayers         uint64 `json:"max_players"`
	FaviconPath        string `json:"favicon_path"`
	EnforcesSecureChat bool   `json:"enforces_secure_chat"`
	CacheTTLSeconds    int    `json:"cache_ttl_seconds"`

	SamplePlayers []string `json:"sample_players"`
}

// CacheConfig selects where built status documents are cached.
type CacheConfig struct {
	Backend       string `json:"backend"`
	RedisAddress  string `json:"redis_address"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	KeyPrefix     string `json:"key_prefix"`
}

// MonitorConfig controls the HTTP monitoring API.
type MonitorConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	FileOutput bool   `json:"file_output"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:  "0.0.0.0:25565",
			TickRate:       scheduler.DefaultTickRate,
			TimeoutTicks:   connection.DefaultTimeoutTicks,
			WriteTimeoutMs: int(stream.DefaultWriteTimeout / time.Millisecond),
			AcceptRate:     100,
			AcceptBurst:    50,
		},
		Status: StatusConfig{
			MOTD:            status.DefaultMOTD,
			VersionName:     status.DefaultVersionName,
			Protocol:        status.DefaultProtocol,
			MaxPlayers:      status.DefaultMaxPlayers,
			CacheTTLSeconds: 5,
		},
		Cache: CacheConfig{
			Backend:      CacheMemory,
			RedisAddress: "localhost:6379",
			KeyPrefix:    "slp:",
		},
		Monitor: MonitorConfig{
			Enabled: true,
			Address: "127.0.0.1:8080",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Directory: "logs",
		},
	}
}

// Load reads the configuration at path, overlaying it on Default. A missing file
// yields the defaults and is written out so operators have a template to edit.
//
// Parameters:
//   - path: A JSON file, or a directory holding DefaultConfigFile
//
// Returns:
//   - The loaded configuration
//   - An error if the file cannot be read or parsed
func Load(path string) (*Config, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultConfigFile)
	}

	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}

			return cfg, nil
		}

		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration to the path it was loaded from.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("config has no path")
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Path returns the file the configuration is saved to.
func (c *Config) Path() string {
	return c.path
}

// SetPath changes the file Save writes to.
func (c *Config) SetPath(path string) {
	c.path = path
}

// StreamConfig returns the socket timing settings.
func (s ServerConfig) StreamConfig() stream.Config {
	return stream.Config{
		WriteTimeout: time.Duration(s.WriteTimeoutMs) * time.Millisecond,
	}
}

// AcceptLimiter returns the limiter for the acceptor, or nil when AcceptRate
// disables it.
func (s ServerConfig) AcceptLimiter() *rate.Limiter {
	if s.AcceptRate <= 0 {
		return nil
	}

	return rate.NewLimiter(rate.Limit(s.AcceptRate), max(s.AcceptBurst, 1))
}

// ProviderConfig returns the settings for status.NewProvider.
func (s StatusConfig) ProviderConfig() status.Config {
	return status.Config{
		MOTD:               s.MOTD,
		VersionName:        s.VersionName,
		Protocol:           s.Protocol,
		MaxPlayers:         s.MaxPlayers,
		FaviconPath:        s.FaviconPath,
		EnforcesSecureChat: s.EnforcesSecureChat,
		CacheTTL:           time.Duration(s.CacheTTLSeconds) * time.Second,
		SamplePlayers:      s.SamplePlayers,
	}
}
