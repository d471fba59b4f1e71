package config

import "github.com/kelseyhightower/envconfig"

// parseEnv overlays cfg with GOPHSKY_* variables. Unset variables leave the
// corresponding field untouched.
func parseEnv(cfg *Config) {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		panic(err)
	}
}
