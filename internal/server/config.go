// Package server provides configuration helpers that define runtime
// defaults, validation, and rate-limiting parameters for the Parlor service.
package server

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig defines the parameters for per-connection frame rate
// limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security
// controls, persistence, and token parameters.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	DatabasePath    string
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	HistoryPageSize int
	HistoryFetchMax int
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		DatabasePath:    "parlor.db",
		JWTSecret:       "dev-secret-change-in-production",
		JWTIssuer:       "parlor",
		AccessTokenTTL:  60 * time.Minute,
		RefreshTokenTTL: 40 * 24 * time.Hour,
		HistoryPageSize: 50,
		HistoryFetchMax: 100,
	}
}

func sanitizeConfig(cfg Config) Config {
	defaults := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaults.DatabasePath
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = defaults.JWTSecret
	}
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = defaults.JWTIssuer
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = defaults.AccessTokenTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = defaults.RefreshTokenTTL
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = defaults.HistoryPageSize
	}
	if cfg.HistoryFetchMax <= 0 {
		cfg.HistoryFetchMax = defaults.HistoryFetchMax
	}
	if cfg.HistoryPageSize > cfg.HistoryFetchMax {
		cfg.HistoryPageSize = cfg.HistoryFetchMax
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to
// defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all
// settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values for variables that are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseInt64Value(maxSize, cfg.MaxMessageSize)
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}
	if path := os.Getenv("DATABASE_PATH"); path != "" {
		cfg.DatabasePath = path
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}
	if issuer := os.Getenv("JWT_ISSUER"); issuer != "" {
		cfg.JWTIssuer = issuer
	}
	if ttl := os.Getenv("ACCESS_TOKEN_TTL_MINUTES"); ttl != "" {
		cfg.AccessTokenTTL = parseMinutes(ttl, cfg.AccessTokenTTL)
	}
	if ttl := os.Getenv("REFRESH_TOKEN_TTL_MINUTES"); ttl != "" {
		cfg.RefreshTokenTTL = parseMinutes(ttl, cfg.RefreshTokenTTL)
	}
	if size := os.Getenv("HISTORY_PAGE_SIZE"); size != "" {
		cfg.HistoryPageSize = parseIntValue(size, cfg.HistoryPageSize)
	}
	if max := os.Getenv("HISTORY_FETCH_MAX"); max != "" {
		cfg.HistoryFetchMax = parseIntValue(max, cfg.HistoryFetchMax)
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func parseMinutes(value string, defaultValue time.Duration) time.Duration {
	if minutes, err := strconv.Atoi(value); err == nil && minutes > 0 {
		return time.Duration(minutes) * time.Minute
	}
	return defaultValue
}
