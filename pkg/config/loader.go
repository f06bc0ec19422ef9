package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is read when READMARK_CONFIG is unset.
const DefaultPath = "./readmark.yaml"

// Load reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults. The YAML path comes from READMARK_CONFIG
// (fallback DefaultPath); a missing default file is not an error.
func Load() (*Config, error) {
	var cfg Config

	path := os.Getenv("READMARK_CONFIG")
	explicitPath := path != ""
	if !explicitPath {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}
