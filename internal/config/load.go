package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration from defaults, the .env file, the optional YAML
// settings file at path, and finally the process environment. A missing .env
// or settings file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	// godotenv never overrides variables already present in the environment
	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load %s: %w", DefaultEnvFile, err)
	}

	if path != "" {
		if err := loadSettings(path, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func loadSettings(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("CONVOCHAT_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v, ok := os.LookupEnv("CONVOCHAT_ARCHIVE"); ok {
		cfg.ArchivePath = v
	}
	if v := os.Getenv("CONVOCHAT_ADDR"); v != "" {
		cfg.Addr = v
	}
}
