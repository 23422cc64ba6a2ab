package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	ShellCLI = "cli"
	ShellWeb = "web"

	// ModelID and Temperature are fixed for every completion call
	ModelID     = "gpt-3.5-turbo"
	Temperature = 0.7

	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultLogDir       = "logs"
	DefaultArchivePath  = "convochat.db"
	DefaultAddr         = ":8501"
	DefaultSettingsFile = "convochat.yaml"
	DefaultEnvFile      = ".env"

	// RequestTimeout bounds a single completion request
	RequestTimeout = 60 * time.Second

	// DefaultSessionTTL is how long an idle browser session is kept
	DefaultSessionTTL = 30 * time.Minute
)

// placeholderKeys are values shipped in sample configs that are never valid credentials
var placeholderKeys = map[string]bool{
	"YOUR_OPENAI_API_KEY": true,
	"your-api-key":        true,
	"sk-...":              true,
	"changeme":            true,
}

// Config holds application configuration
type Config struct {
	APIKey      string        `yaml:"openai_api_key"`
	BaseURL     string        `yaml:"base_url"`
	LogDir      string        `yaml:"log_dir"`
	ArchivePath string        `yaml:"archive_path"` // empty disables the transcript archive
	Addr        string        `yaml:"addr"`         // web shell listen address
	SessionTTL  time.Duration `yaml:"session_ttl"`  // idle browser sessions are dropped after this
	Debug       bool          `yaml:"debug"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		LogDir:      DefaultLogDir,
		ArchivePath: DefaultArchivePath,
		Addr:        DefaultAddr,
		SessionTTL:  DefaultSessionTTL,
	}
}

// ConfigurationError reports a configuration that cannot be used to reach the model
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// Validate checks that a usable credential is present
func (c Config) Validate() error {
	key := strings.TrimSpace(c.APIKey)
	if key == "" {
		return &ConfigurationError{Field: "OPENAI_API_KEY", Reason: "is not set"}
	}
	if placeholderKeys[key] {
		return &ConfigurationError{Field: "OPENAI_API_KEY", Reason: "is still a placeholder value"}
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return &ConfigurationError{Field: "base_url", Reason: "is empty"}
	}
	return nil
}
