package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ValidationError is one problem found in the configuration.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult collects errors, which prevent startup, and warnings, which
// are only reported.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks every section of the configuration.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	validateServer(&c.Server, result)
	validateStatus(&c.Status, result)
	validateCache(&c.Cache, result)
	validateMonitor(&c.Monitor, &c.Server, result)
	validateLogging(&c.Logging, result)

	return result
}

func validateServer(s *ServerConfig, result *ValidationResult) {
	validateAddress(s.ListenAddress, "server.listen_address", result)

	if s.TickRate < 1 || s.TickRate > 1000 {
		result.AddError("server.tick_rate", fmt.Sprintf("tick rate %d must be between 1 and 1000", s.TickRate))
	}

	if s.TimeoutTicks < 1 {
		result.AddError("server.timeout_ticks", "timeout must be at least 1 tick")
	} else if s.TickRate > 0 && int(s.TimeoutTicks) < s.TickRate {
		result.AddWarning("server.timeout_ticks", "timeout shorter than one second may drop slow clients")
	}

	if s.WriteTimeoutMs < 0 {
		result.AddError("server.write_timeout_ms", "write timeout must not be negative")
	}

	if s.AcceptRate < 0 {
		result.AddError("server.accept_rate", "accept rate must not be negative")
	} else if s.AcceptRate > 0 && s.AcceptBurst < 1 {
		result.AddWarning("server.accept_burst", "accept burst below 1, a burst of 1 will be used")
	}
}

func validateStatus(s *StatusConfig, result *ValidationResult) {
	if strings.TrimSpace(s.MOTD) == "" {
		result.AddWarning("status.motd", "empty MOTD")
	}

	if s.MaxPlayers == 0 {
		result.AddWarning("status.max_players", "max players is 0, the default will be used")
	}

	if s.FaviconPath != "" {
		if _, err := os.Stat(s.FaviconPath); err != nil {
			result.AddError("status.favicon_path", fmt.Sprintf("favicon not readable: %v", err))
		}
	}

	if s.CacheTTLSeconds < 0 {
		result.AddError("status.cache_ttl_seconds", "cache ttl must not be negative")
	}

	if s.MaxPlayers > 0 && uint64(len(s.SamplePlayers)) > s.MaxPlayers {
		result.AddWarning("status.sample_players", "more sample players than max players")
	}

	for i, name := range s.SamplePlayers {
		if strings.TrimSpace(name) == "" {
			result.AddError(fmt.Sprintf("status.sample_players[%d]", i), "sample player name is empty")
		}
	}
}

func validateCache(c *CacheConfig, result *ValidationResult) {
	switch c.Backend {
	case CacheMemory:
	case CacheRedis:
		if strings.TrimSpace(c.RedisAddress) == "" {
			result.AddError("cache.redis_address", "redis address is required when the redis backend is selected")
		}

		if c.RedisDB < 0 {
			result.AddError("cache.redis_db", "redis db must not be negative")
		}
	default:
		result.AddError("cache.backend", fmt.Sprintf("unknown cache backend %q (expected %s or %s)", c.Backend, CacheMemory, CacheRedis))
	}
}

func validateMonitor(m *MonitorConfig, s *ServerConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}

	validateAddress(m.Address, "monitor.address", result)
	if m.Address == s.ListenAddress {
		result.AddError("monitor.address", "monitor and server cannot share an address")
	}
}

func validateLogging(l *LoggingConfig, result *ValidationResult) {
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		result.AddError("logging.level", fmt.Sprintf("unknown log level %q", l.Level))
	}

	if l.FileOutput && strings.TrimSpace(l.Directory) == "" {
		result.AddError("logging.directory", "log directory is required when file output is enabled")
	}
}

func validateAddress(addr, field string, result *ValidationResult) {
	_, portText, err := net.SplitHostPort(addr)
	if err != nil {
		result.AddError(field, fmt.Sprintf("invalid address %q: %v", addr, err))
		return
	}

	port, err := strconv.Atoi(portText)
	if err != nil || port < 0 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %s (must be 0-65535)", portText))
		return
	}

	if port > 0 && port < 1024 {
		result.AddWarning(field, fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}
