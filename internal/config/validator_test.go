package config

import (
	"strings"
	"testing"
)

func minimalValidConfig() *Config {
	cfg := &Config{
		DatabaseURL: "postgres://localhost:5432/pdp",
		RedisURL:    "redis://localhost:6379",
	}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.DatabaseURL = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "DatabaseURL") {
		t.Errorf("error = %q, want to contain 'DatabaseURL'", err.Error())
	}
}

func TestValidate_EmptyRedisURLIsValid(t *testing.T) {
	t.Parallel()

	// REDIS_URL is optional -- standalone mode falls back to the memory
	// rate limiter and runs with a cold, never-invalidated policy cache.
	cfg := minimalValidConfig()
	cfg.RedisURL = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with empty RedisURL unexpected error: %v", err)
	}
	if cfg.HasRedis() {
		t.Error("HasRedis() = true with empty RedisURL")
	}
}

func TestValidate_MalformedDSN(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.DatabaseURL = "not-a-dsn"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for malformed DSN, got nil")
	}
	if !strings.Contains(err.Error(), "connection string") {
		t.Errorf("error = %q, want to contain 'connection string'", err.Error())
	}
}

func TestValidate_ZeroRateLimitRejected(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.RateLimitRPSDefault = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for zero rate limit, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "LogLevel") {
		t.Errorf("error = %q, want to contain 'LogLevel'", err.Error())
	}
}

func TestValidate_ZeroConfigFailsClosed(t *testing.T) {
	t.Parallel()

	// DATABASE_URL is the one field with no default: a zero-config run
	// must fail validation rather than silently pointing at nothing.
	cfg := &Config{}
	cfg.SetDefaults()

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() zero-config expected error (missing DatabaseURL), got nil")
	}
}
