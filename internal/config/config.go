// Package config provides configuration for the PDP service.
//
// Configuration is environment-variable only -- there is no YAML file, no
// config-file search path, and no nested key structure. The schema mirrors
// the literal env var names in the integration contract:
//
//   - DATABASE_URL            Postgres connection string (required)
//   - REDIS_URL                Redis connection string (optional; empty
//     selects the in-memory fallback rate limiter and a cold policy cache
//     with no cross-process invalidation)
//   - DEFAULT_ALLOW            parsed for wire compatibility; not consulted
//     on the hot path (always fail-closed, see DESIGN.md)
//   - RATE_LIMIT_RPS_DEFAULT   requests/sec budget applied per tenant
//   - CLAIMS_SECRET            shared secret for the optional claims checksum
//   - PDP_LOG                  log/slog level filter (debug/info/warn/error)
//   - LISTEN_ADDR              HTTP listen address
package config

// Config is the full PDP configuration, populated from environment
// variables only. Field names intentionally match the env vars via
// mapstructure tags so viper.AutomaticEnv can bind them without a key
// replacer (no dots, no nesting).
type Config struct {
	// DatabaseURL is the Postgres DSN backing the store client.
	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"required,pdp_dsn"`

	// RedisURL is the shared-cache DSN backing the decision cache, the
	// shared rate limiter, and the invalidation channel. Empty selects
	// the in-memory fallback rate limiter and disables the invalidation
	// listener and decision cache (everything becomes a pass-through miss).
	RedisURL string `mapstructure:"REDIS_URL" validate:"omitempty,pdp_dsn"`

	// DefaultAllow is parsed for wire compatibility but intentionally not
	// consulted on the hot path: its fail-open vs fail-closed role was
	// never settled upstream, and the resolution documented in DESIGN.md
	// is to always fail closed on policy-load and tenant-scope errors
	// regardless of its value.
	DefaultAllow bool `mapstructure:"DEFAULT_ALLOW"`

	// RateLimitRPSDefault is the per-tenant requests/sec budget used when
	// no tenant-specific override exists. Must be positive.
	RateLimitRPSDefault int `mapstructure:"RATE_LIMIT_RPS_DEFAULT" validate:"required,min=1"`

	// ClaimsSecret is the shared secret used by the claims checksum
	// verifier. The wire format is intentionally weak (see
	// internal/domain/claims); this is not a cryptographic secret.
	ClaimsSecret string `mapstructure:"CLAIMS_SECRET" validate:"required"`

	// LogLevel is the log/slog level filter.
	LogLevel string `mapstructure:"PDP_LOG" validate:"omitempty,oneof=debug info warn warning error"`

	// ListenAddr is the HTTP listen address.
	ListenAddr string `mapstructure:"LISTEN_ADDR" validate:"omitempty,hostname_port"`
}

// SetDefaults applies default values for optional fields. Must run before
// Validate so defaulted fields satisfy struct-tag requirements.
func (c *Config) SetDefaults() {
	if c.RateLimitRPSDefault == 0 {
		c.RateLimitRPSDefault = 100
	}
	if c.ClaimsSecret == "" {
		c.ClaimsSecret = "dev-secret"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0:8081"
	}
}

// HasRedis reports whether a shared cache/rate-limiter backend is
// configured. When false, the service runs in degraded standalone mode:
// memory rate limiter, no decision cache, no invalidation listener.
func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}
