package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// parseEnv overlays environment variables onto config. Variables from a
// .env file in the working directory are loaded first but never override
// the real environment. Unset variables leave fields untouched.
func parseEnv(config *Config) error {
	_ = godotenv.Load()

	if err := env.Load(config, nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	return nil
}
