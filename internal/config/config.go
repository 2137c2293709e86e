// Package config loads service configuration from the environment. A .env
// file is honoured in development; production supplies real environment
// variables. The permission matrix path and the read-audit sampling rate
// live here so deployments can tune both without a rebuild.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the load-time configuration surface.
type Config struct {
	Env      string
	LogLevel string

	HTTPAddr string
	PGDSN    string

	TokenTTL        time.Duration
	LockWait        time.Duration
	AuditSampleRate float64
	MatrixPath      string
	ExportPageSize  int

	RateLimitPerSecond int
	RateLimitBurst     int
}

// Load reads configuration from the environment, after loading a .env file
// if one is present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:      getString("CASESHARE_ENV", "development"),
		LogLevel: getString("CASESHARE_LOG_LEVEL", "info"),

		HTTPAddr: getString("CASESHARE_HTTP_ADDR", ":8080"),
		PGDSN:    getString("CASESHARE_PG_DSN", ""),

		TokenTTL:        getDuration("CASESHARE_TOKEN_TTL", 12*time.Hour),
		LockWait:        getDuration("CASESHARE_LOCK_WAIT", 2*time.Second),
		AuditSampleRate: getFloat("CASESHARE_AUDIT_SAMPLE_RATE", 1.0),
		MatrixPath:      getString("CASESHARE_PERMISSION_MATRIX", ""),
		ExportPageSize:  getInt("CASESHARE_AUDIT_EXPORT_PAGE", 500),

		RateLimitPerSecond: getInt("CASESHARE_RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getInt("CASESHARE_RATE_LIMIT_BURST", 40),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
