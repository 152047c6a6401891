package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"

	serviceOverridePrefix = "CONCIERGE_SERVICE_"
	serviceOverrideSuffix = "_URL"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	RequestTimeout  time.Duration // per-request budget, must exceed DownstreamTimeout
	RoutePrefix     string        // dashboard routes are also mounted here (ex: "/api/dashboard")

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	ServicesFile        string            // path to the downstream services.yaml
	ServiceURLOverrides map[string]string // CONCIERGE_SERVICE_<NAME>_URL, keyed by lowercase name
	DownstreamTimeout   time.Duration     // independent timeout of every downstream call (default: 5s)
	ProbeInterval       time.Duration     // interval between downstream health probes (0 = disabled)
	ProbeTimeout        time.Duration     // timeout of a single health probe

	CacheBackend       string        // "memory" | "redis"
	CacheSweepInterval time.Duration // background sweep of expired memory entries

	JWTSecret   string   // HS256 secret used to read caller identity from bearer tokens
	CORSOrigins []string // allowed CORS origins, empty = CORS disabled

	// Redis (only when CacheBackend == "redis")
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts
	RedisKeyPrefix        string        // namespace for every key written by this service

	AllowedCIDRS []string // optional, restrict access to ops endpoints (healthz, readyz, infra, metrics)
	TrustProxy   bool     // true => trust X-Forwarded-For headers
}

func Load() *Config {
	loadDotEnv(getenv("CONCIERGE_ENV_FILE", ".env"))

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("CONCIERGE_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("CONCIERGE_SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  mustDuration("CONCIERGE_REQUEST_TIMEOUT", 10*time.Second),
		RoutePrefix:     getenv("CONCIERGE_ROUTE_PREFIX", "/api/dashboard"),

		// Logging
		LogLevel:  getenv("CONCIERGE_LOG_LEVEL", "info"),
		PrettyLog: mustBool("CONCIERGE_PRETTY_LOG", true),

		// Downstream services
		ServicesFile:        getenv("CONCIERGE_SERVICES_FILE", "/app/services.yaml"),
		ServiceURLOverrides: parseServiceOverrides(os.Environ()),
		DownstreamTimeout:   mustDuration("CONCIERGE_DOWNSTREAM_TIMEOUT", 5*time.Second),
		ProbeInterval:       mustDuration("CONCIERGE_PROBE_INTERVAL", 30*time.Second),
		ProbeTimeout:        mustDuration("CONCIERGE_PROBE_TIMEOUT", 2*time.Second),

		// Cache
		CacheBackend:       strings.ToLower(getenv("CONCIERGE_CACHE_BACKEND", CacheBackendMemory)),
		CacheSweepInterval: mustDuration("CONCIERGE_CACHE_SWEEP_INTERVAL", time.Minute),

		// Identity
		JWTSecret:   requireEnv("CONCIERGE_JWT_SECRET"),
		CORSOrigins: splitAndTrim(getenv("CONCIERGE_CORS_ORIGINS", "")),

		// Redis settings
		RedisAddr:             getenv("CONCIERGE_REDIS_ADDR", "localhost:6379"),
		RedisUser:             getenv("CONCIERGE_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("CONCIERGE_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("CONCIERGE_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("CONCIERGE_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),
		RedisKeyPrefix:        getenv("CONCIERGE_REDIS_KEY_PREFIX", "concierge:"),

		// Access restrictions
		AllowedCIDRS: parseAllowedIPs(getenv("CONCIERGE_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("CONCIERGE_TRUST_PROXY", true),
	}

	if err := cfg.validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		cfgCopy.JWTSecret = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

func (c *Config) validate() error {
	switch c.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.RedisPasswordRequired && c.RedisPassword == "" {
			return errors.New("CONCIERGE_REDIS_PASSWORD is required when CONCIERGE_REDIS_PASSWORD_REQUIRED=true")
		}
	default:
		return fmt.Errorf("CONCIERGE_CACHE_BACKEND must be %q or %q, got %q",
			CacheBackendMemory, CacheBackendRedis, c.CacheBackend)
	}
	if c.DownstreamTimeout <= 0 {
		return fmt.Errorf("CONCIERGE_DOWNSTREAM_TIMEOUT must be > 0, got %v", c.DownstreamTimeout)
	}
	if c.RequestTimeout <= c.DownstreamTimeout {
		return fmt.Errorf("CONCIERGE_REQUEST_TIMEOUT (%v) must exceed CONCIERGE_DOWNSTREAM_TIMEOUT (%v)",
			c.RequestTimeout, c.DownstreamTimeout)
	}
	return nil
}

// loadDotEnv loads KEY=VALUE pairs from path without overriding the real environment.
// A missing file is not an error.
func loadDotEnv(path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[WARN] failed to load %s: %v\n", path, err)
	}
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

// parseServiceOverrides picks CONCIERGE_SERVICE_<NAME>_URL entries out of environ.
// Example: CONCIERGE_SERVICE_PAYMENTS_URL=http://payments:3004 -> {"payments": "http://payments:3004"}
func parseServiceOverrides(environ []string) map[string]string {
	overrides := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		if !strings.HasPrefix(key, serviceOverridePrefix) || !strings.HasSuffix(key, serviceOverrideSuffix) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, serviceOverridePrefix), serviceOverrideSuffix)
		if name == "" {
			continue
		}
		overrides[strings.ToLower(name)] = strings.TrimSpace(value)
	}
	return overrides
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
