// Package config loads process configuration from an optional .env file and
// the environment. Every binary has its own struct built from the shared
// sections below.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/resilience"
)

// Common is read by every binary.
type Common struct {
	ServiceName  string
	Port         string
	LogLevel     string
	OTelEnabled  bool
	OTelEndpoint string
	RedisAddr    string
}

// Resilience configures the shared client, its retry policy and breakers.
type Resilience struct {
	CallTimeout             time.Duration
	RetryMaxAttempts        int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	RetryMultiplier         float64
	RetryJitter             float64
	BreakerFailureThreshold int
	BreakerOpenDuration     time.Duration
	ResponseCacheTTL        time.Duration
}

// Discovery selects the registry implementation.
//   - static: DISCOVERY_ENDPOINTS="svc=http://a|http://b,svc2=http://c"
//   - redis: sets under DISCOVERY_PREFIX in REDIS_ADDR
type Discovery struct {
	Mode      string
	Endpoints string
	Prefix    string
	// AdvertiseURL is what this process registers itself as in redis mode.
	AdvertiseURL string
}

func (r Resilience) RetryPolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxAttempts: r.RetryMaxAttempts,
		BaseDelay:   r.RetryBaseDelay,
		MaxDelay:    r.RetryMaxDelay,
		Multiplier:  r.RetryMultiplier,
		Jitter:      r.RetryJitter,
	}
}

func (r Resilience) BreakerSettings() resilience.BreakerSettings {
	return resilience.BreakerSettings{
		FailureThreshold: r.BreakerFailureThreshold,
		OpenDuration:     r.BreakerOpenDuration,
	}
}

// loadEnv reads path into the environment. A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func loadCommon(serviceName, defaultPort string) Common {
	return Common{
		ServiceName:  getEnv("OTEL_SERVICE_NAME", serviceName),
		Port:         getEnv("PORT", defaultPort),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		OTelEnabled:  parseBool(getEnv("OTEL_ENABLED", "false"), false),
		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
	}
}

func loadResilience() Resilience {
	return Resilience{
		CallTimeout:             parseDuration(getEnv("CALL_TIMEOUT", "2s"), 2*time.Second),
		RetryMaxAttempts:        parseInt(getEnv("RETRY_MAX_ATTEMPTS", "3"), 3),
		RetryBaseDelay:          parseDuration(getEnv("RETRY_BASE_DELAY", "100ms"), 100*time.Millisecond),
		RetryMaxDelay:           parseDuration(getEnv("RETRY_MAX_DELAY", "2s"), 2*time.Second),
		RetryMultiplier:         parseFloat(getEnv("RETRY_MULTIPLIER", "2"), 2),
		RetryJitter:             parseFloat(getEnv("RETRY_JITTER", "0.2"), 0.2),
		BreakerFailureThreshold: parseInt(getEnv("BREAKER_FAILURE_THRESHOLD", "5"), 5),
		BreakerOpenDuration:     parseDuration(getEnv("BREAKER_OPEN_DURATION", "30s"), 30*time.Second),
		ResponseCacheTTL:        parseDuration(getEnv("RESPONSE_CACHE_TTL", "24h"), 24*time.Hour),
	}
}

func loadDiscovery(defaultAdvertise string) Discovery {
	return Discovery{
		Mode: strings.ToLower(getEnv("DISCOVERY_MODE", "static")),
		Endpoints: getEnv("DISCOVERY_ENDPOINTS",
			"order-service=http://localhost:8081,inventory-service=http://localhost:8082,user-service=http://localhost:8083"),
		Prefix:       getEnv("DISCOVERY_PREFIX", "discovery"),
		AdvertiseURL: getEnv("ADVERTISE_URL", defaultAdvertise),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func parseDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func parseInt(v string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func parseFloat(v string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func parseBool(v string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
