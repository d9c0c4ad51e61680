// Package api provides the HTTP server infrastructure for docquality.
// The JSON endpoints live in the v2 subpackage.
package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	// Server binding
	Host string
	Port string

	// Security settings
	AllowedOrigins []string

	// Timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Limits
	BodyLimit      string  // e.g. "200M"
	RateLimit      bool    // per-client limiting
	RateLimitRPS   float64 // sustained requests per second per client
	RateLimitBurst int

	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            "8000",
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       "200M",
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	ws := &settings.WebServer

	cfg.Host = ws.Host
	cfg.Port = strconv.Itoa(ws.Port)
	if len(ws.CORSOrigins) > 0 {
		cfg.AllowedOrigins = ws.CORSOrigins
	}
	if ws.ReadTimeout > 0 {
		cfg.ReadTimeout = ws.ReadTimeout
	}
	if ws.WriteTimeout > 0 {
		cfg.WriteTimeout = ws.WriteTimeout
	}
	if ws.BodyLimit != "" {
		cfg.BodyLimit = ws.BodyLimit
	}
	cfg.RateLimit = ws.RateLimit.Enabled
	if ws.RateLimit.RPS > 0 {
		cfg.RateLimitRPS = ws.RateLimit.RPS
	}
	if ws.RateLimit.Burst > 0 {
		cfg.RateLimitBurst = ws.RateLimit.Burst
	}
	cfg.Debug = settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.RateLimit && (c.RateLimitRPS <= 0 || c.RateLimitBurst < 1) {
		return fmt.Errorf("rate limit needs a positive rate and burst")
	}
	return nil
}

// Address returns the full address string for the server to listen on.
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Server Config: address=%s, rate_limit=%v, debug=%v",
		c.Address(), c.RateLimit, c.Debug)
}
