// Package config loads client settings from the environment, optionally
// seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/orincore/CircleRJ/internal/transport"
)

// Transport names accepted in TRANSPORT.
const (
	TransportWebSocket = "ws"
	TransportNATS      = "nats"
)

// Config holds every client setting.
type Config struct {
	UserID        string // signed-in user; empty starts signed out
	Transport     string // ws | nats
	WebSocket     transport.WebSocketConfig
	NATS          transport.NATSConfig
	DatabaseURL   string // empty disables history
	RunMigrations bool
	RedisAddr     string // empty disables send throttling
	MetricsAddr   string // empty disables /metrics
	Notifications bool
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Transport:     TransportWebSocket,
		WebSocket:     transport.DefaultWebSocketConfig(),
		NATS:          transport.DefaultNATSConfig(),
		Notifications: true,
	}
}

// FromEnv loads the given .env files (".env" when none are named), then
// applies environment overrides on top of Default. Missing .env files are
// ignored; variables already set in the environment win over file values.
func FromEnv(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	c := Default()
	c.UserID = getEnv("CIRCLE_USER_ID", c.UserID)
	c.Transport = getEnv("TRANSPORT", c.Transport)
	c.WebSocket.URL = getEnv("SERVER_URL", c.WebSocket.URL)
	c.WebSocket.Heartbeat.Interval = getEnvDuration("PING_INTERVAL", c.WebSocket.Heartbeat.Interval)
	c.WebSocket.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", c.WebSocket.WriteTimeout)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RunMigrations = getEnvBool("RUN_MIGRATIONS", c.RunMigrations)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.Notifications = getEnvBool("NOTIFICATIONS", c.Notifications)

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportWebSocket:
		if c.WebSocket.URL == "" {
			return fmt.Errorf("config: SERVER_URL is required for the ws transport")
		}
	case TransportNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("config: NATS_URL is required for the nats transport")
		}
	default:
		return fmt.Errorf("config: unknown TRANSPORT %q (want %q or %q)", c.Transport, TransportWebSocket, TransportNATS)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
