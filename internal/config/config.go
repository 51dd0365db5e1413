// Package config loads client configuration with multi-source priority:
// environment variables (CAMEL_*) override the config file
// (~/.camel/config.yaml), which overrides built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration problems, checked with errors.Is.
var (
	// ErrMissingBaseURL indicates no API endpoint is configured.
	ErrMissingBaseURL = errors.New("missing API base URL")

	// ErrInvalidBaseURL indicates the configured endpoint is not an
	// absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("invalid API base URL")

	// ErrMissingToken indicates no API token is configured.
	ErrMissingToken = errors.New("missing API token")
)

// Default values for optional settings.
const (
	DefaultModel    = "camel-large"
	DefaultLogLevel = "info"
)

// Config is the full client configuration.
type Config struct {
	API APIConfig `mapstructure:"api"`
	Log LogConfig `mapstructure:"log"`
}

// APIConfig configures the session protocol client.
type APIConfig struct {
	BaseURL   string   `mapstructure:"base_url"`
	Token     string   `mapstructure:"token"`
	Model     string   `mapstructure:"model"`
	Sources   []string `mapstructure:"sources"`
	Autograph bool     `mapstructure:"autograph"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Load reads configuration from all sources and validates it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".camel"))
	}

	v.SetEnvPrefix("CAMEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No config file is fine; env and defaults cover everything.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Empty defaults register the keys so AutomaticEnv can satisfy them.
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.sources", []string{})
	v.SetDefault("api.model", DefaultModel)
	v.SetDefault("api.autograph", true)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", false)
}

// Validate checks required fields and value shapes.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.API.BaseURL)
	}
	if c.API.Token == "" {
		return ErrMissingToken
	}
	return nil
}
