// Package config loads host-level defaults for widget construction.
//
// Values come from the environment first (WEBWIDGET_* variables) and can be
// overridden by an optional YAML file. Per-widget settings passed to
// widget.New take precedence over everything here.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds host-wide defaults.
type Config struct {
	Widget  WidgetConfig
	Logging LogConfig
}

// WidgetConfig holds default widget construction parameters.
type WidgetConfig struct {
	UserAgent      string `envconfig:"WEBWIDGET_USER_AGENT" yaml:"user_agent"`
	Debug          bool   `envconfig:"WEBWIDGET_DEBUG" yaml:"debug" default:"false"`
	ContextMenus   bool   `envconfig:"WEBWIDGET_CONTEXT_MENUS" yaml:"context_menus" default:"false"`
	LazyLoad       bool   `envconfig:"WEBWIDGET_LAZYLOAD" yaml:"lazyload" default:"true"`
	UserDataFolder string `envconfig:"WEBWIDGET_USER_DATA_DIR" yaml:"user_data_folder"`
	NoLocalStorage bool   `envconfig:"WEBWIDGET_NO_LOCAL_STORAGE" yaml:"no_local_storage" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"WEBWIDGET_LOG_LEVEL" yaml:"level" default:"info"`
	Development bool   `envconfig:"WEBWIDGET_LOG_DEV" yaml:"development" default:"false"`
}

// Load loads configuration from WEBWIDGET_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("webwidget", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadFile loads configuration from the environment, then applies overrides
// from the given YAML file.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Widget: WidgetConfig{
			Debug:        false,
			ContextMenus: false,
			LazyLoad:     true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
