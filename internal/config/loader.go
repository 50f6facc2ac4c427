package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// envVars is the exhaustive list of env vars the PDP reads. Each is bound
// explicitly rather than relying on viper.AutomaticEnv's lazy lookup
// alone, so viper.Unmarshal sees every key even when unset.
var envVars = []string{
	"DATABASE_URL",
	"REDIS_URL",
	"DEFAULT_ALLOW",
	"RATE_LIMIT_RPS_DEFAULT",
	"CLAIMS_SECRET",
	"PDP_LOG",
	"LISTEN_ADDR",
}

// InitViper wires plain environment-variable configuration. There is no
// config file and no key replacer: every field name is a literal env var
// with no nesting, so AutomaticEnv needs no prefix or separator rewriting.
func InitViper() {
	viper.AutomaticEnv()
	for _, key := range envVars {
		_ = viper.BindEnv(key)
	}
}

// LoadConfig reads bound environment variables into a Config, applies
// defaults, and validates the result.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
