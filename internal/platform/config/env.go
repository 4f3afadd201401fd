package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Prefix namespaces every environment variable the relay binaries read.
// Struct tags name variables without it: `env:"DB_PATH"` reads
// RELAYCHAIN_DB_PATH.
const Prefix = "RELAYCHAIN_"

// ParseEnv loads configuration from prefixed environment variables.
func ParseEnv(target any) error {
	if target == nil {
		return errors.New("parse env: target is required")
	}
	if err := env.ParseWithOptions(target, env.Options{Prefix: Prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
