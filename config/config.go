package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort         = 3001
	DefaultRedisChannel = "pos-relay:broadcast"
)

type Config struct {
	Port            int
	CORSOrigin      string
	AllowedOrigins  []string
	LogLevel        slog.Level
	PingInterval    time.Duration
	PingTimeout     time.Duration
	ShutdownTimeout time.Duration
	RedisURL        string
	RedisChannel    string
}

// Load reads the configuration from the environment. Values from a .env file
// in the working directory are used for variables that are not already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:            DefaultPort,
		CORSOrigin:      "*",
		LogLevel:        slog.LevelInfo,
		PingInterval:    25 * time.Second,
		PingTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RedisURL:        strings.TrimSpace(getenv("REDIS_URL")),
		RedisChannel:    DefaultRedisChannel,
	}

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 0 || port > 65535 {
			return nil, fmt.Errorf("config: invalid PORT %q", v)
		}
		cfg.Port = port
	}
	if v := strings.TrimSpace(getenv("CORS_ORIGIN")); v != "" {
		cfg.CORSOrigin = v
	}
	cfg.AllowedOrigins = splitOrigins(cfg.CORSOrigin)

	switch strings.ToLower(getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"PING_INTERVAL", &cfg.PingInterval},
		{"PING_TIMEOUT", &cfg.PingTimeout},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		v := getenv(d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("config: invalid %s %q", d.name, v)
		}
		*d.dst = parsed
	}
	if cfg.PingTimeout <= cfg.PingInterval {
		return nil, fmt.Errorf("config: PING_TIMEOUT (%v) must be greater than PING_INTERVAL (%v)", cfg.PingTimeout, cfg.PingInterval)
	}

	if v := strings.TrimSpace(getenv("REDIS_CHANNEL")); v != "" {
		cfg.RedisChannel = v
	}
	return cfg, nil
}

func splitOrigins(v string) []string {
	if v == "*" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
