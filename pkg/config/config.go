// Package config loads the gateway daemon's runtime tunables from the
// environment, applying documented defaults and returning descriptive
// errors for invalid overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the gateway listens on.
	DefaultAddr = ":8880"
	// DefaultSweepInterval is the liveness sweep period.
	DefaultSweepInterval = time.Minute
	// DefaultStaleThreshold is the maximum silence before eviction.
	DefaultStaleThreshold = 5 * time.Minute
	// DefaultPingInterval is the server keepalive cadence.
	DefaultPingInterval = 30 * time.Second
	// DefaultSendBuffer is the per-connection outgoing buffer size.
	DefaultSendBuffer = 16
	// DefaultLogLevel controls log verbosity.
	DefaultLogLevel = "info"
)

// Config captures all runtime tunables for the gateway daemon.
type Config struct {
	Addr           string
	SweepInterval  time.Duration
	StaleThreshold time.Duration
	PingInterval   time.Duration
	SendBuffer     int
	AllowedOrigins []string
	AuthSecretPath string
	DevCredentials map[string]string
	LogLevel       slog.Level
}

// Load reads the configuration from GATEWAY_* environment variables.
// All invalid overrides are reported together.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:           getString("GATEWAY_ADDR", DefaultAddr),
		SweepInterval:  DefaultSweepInterval,
		StaleThreshold: DefaultStaleThreshold,
		PingInterval:   DefaultPingInterval,
		SendBuffer:     DefaultSendBuffer,
		AllowedOrigins: parseList(os.Getenv("GATEWAY_ALLOWED_ORIGINS")),
		AuthSecretPath: strings.TrimSpace(os.Getenv("GATEWAY_AUTH_SECRET_PATH")),
		LogLevel:       slog.LevelInfo,
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("GATEWAY_SWEEP_INTERVAL")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			problems = append(problems, fmt.Sprintf("GATEWAY_SWEEP_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.SweepInterval = d
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GATEWAY_STALE_THRESHOLD")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			problems = append(problems, fmt.Sprintf("GATEWAY_STALE_THRESHOLD must be a positive duration, got %q", raw))
		} else {
			cfg.StaleThreshold = d
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GATEWAY_PING_INTERVAL")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("GATEWAY_PING_INTERVAL must be a duration, got %q", raw))
		} else {
			cfg.PingInterval = d // negative disables pings
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GATEWAY_SEND_BUFFER")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			problems = append(problems, fmt.Sprintf("GATEWAY_SEND_BUFFER must be a positive integer, got %q", raw))
		} else {
			cfg.SendBuffer = n
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GATEWAY_LOG_LEVEL")); raw != "" {
		level, err := parseLevel(raw)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			cfg.LogLevel = level
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GATEWAY_DEV_CREDENTIALS")); raw != "" {
		creds, err := parseCredentials(raw)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			cfg.DevCredentials = creds
		}
	}

	if cfg.SweepInterval >= cfg.StaleThreshold {
		problems = append(problems, fmt.Sprintf(
			"GATEWAY_SWEEP_INTERVAL (%v) must be shorter than GATEWAY_STALE_THRESHOLD (%v)",
			cfg.SweepInterval, cfg.StaleThreshold))
	}

	if len(problems) > 0 {
		return nil, errors.New("invalid gateway configuration: " + strings.Join(problems, "; "))
	}
	return cfg, nil
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("GATEWAY_LOG_LEVEL must be debug, info, warn or error, got %q", raw)
	}
}

// parseCredentials parses "user:token,user2:token2" development pairs.
func parseCredentials(raw string) (map[string]string, error) {
	creds := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		user, token, ok := strings.Cut(pair, ":")
		if !ok || user == "" || token == "" {
			return nil, fmt.Errorf("GATEWAY_DEV_CREDENTIALS entries must be user:token, got %q", pair)
		}
		creds[user] = token
	}
	return creds, nil
}

func parseList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
