// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the realtime service.
type Config struct {
	// Server
	Port               string
	CORSAllowedOrigins string
	ShutdownTimeout    time.Duration

	// Storage
	DBPath  string
	DBDebug bool

	// Session store
	RedisURL         string
	RedisDB          int
	SessionSecrets   []string
	SessionCookie    string
	SessionKeyPrefix string

	// Realtime
	CallTimeout       time.Duration
	HeartbeatInterval time.Duration
	SendBufferSize    int
}

// Load reads .env (when present) and the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "3000"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DBPath:  getEnv("DB_PATH", "realtime.db"),
		DBDebug: getEnv("DB_DEBUG", "false") == "true",

		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisDB:          getEnvAsInt("REDIS_DB", 0),
		SessionSecrets:   splitList(os.Getenv("SESSION_SECRET")),
		SessionCookie:    getEnv("SESSION_COOKIE_NAME", "connect.sid"),
		SessionKeyPrefix: getEnv("SESSION_KEY_PREFIX", "sess:"),

		CallTimeout:       getEnvAsDuration("CALL_TIMEOUT", 30*time.Second),
		HeartbeatInterval: getEnvAsDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		SendBufferSize:    getEnvAsInt("SEND_BUFFER_SIZE", 256),
	}
}

// ErrNoSessionSecret is returned by Validate when SESSION_SECRET is unset.
var ErrNoSessionSecret = errors.New("SESSION_SECRET must be set")

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	if len(c.SessionSecrets) == 0 {
		return ErrNoSessionSecret
	}
	return nil
}

// AllowedOrigins returns CORS_ALLOWED_ORIGINS as a list. It also bounds which
// pages may open a WebSocket with the session cookie.
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("45s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
