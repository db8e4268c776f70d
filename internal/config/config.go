// Package config loads and persists the run configuration store, a single
// JSON object kept next to the binary by default.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/G2mcab/Email-extractor/internal/model"
)

const (
	DefaultPath          = "config.json"
	DefaultCSVDirectory  = "./emails"
	DefaultMaxRetries    = 3
	DefaultDefaultAction = "export"
)

// Config is the persisted run configuration.
type Config struct {
	// CSVDirectory is the root every export is written under.
	CSVDirectory string `mapstructure:"csv_directory" yaml:"csv_directory"`

	// MaxRetries bounds attempts per remote call.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// DefaultAction preselects export, delete or archive.
	DefaultAction string `mapstructure:"default_action" yaml:"default_action"`
}

func Default() *Config {
	return &Config{
		CSVDirectory:  DefaultCSVDirectory,
		MaxRetries:    DefaultMaxRetries,
		DefaultAction: DefaultDefaultAction,
	}
}

// Action parses DefaultAction.
func (c *Config) Action() (model.Action, error) {
	return model.ParseAction(c.DefaultAction)
}

// Load reads the store at path. When the file does not exist the defaults
// are written there first, so later runs read the same values.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault("csv_directory", DefaultCSVDirectory)
	v.SetDefault("max_retries", DefaultMaxRetries)
	v.SetDefault("default_action", DefaultDefaultAction)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values Load would reject.
func (c *Config) Validate() error {
	if c.CSVDirectory == "" {
		return errors.New("csv_directory must not be empty")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if _, err := c.Action(); err != nil {
		return err
	}
	return nil
}

// Save writes cfg to path as JSON, creating parent directories if needed.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory %s: %w", dir, err)
		}
	}

	v := viper.New()
	v.SetConfigType("json")
	v.Set("csv_directory", cfg.CSVDirectory)
	v.Set("max_retries", cfg.MaxRetries)
	v.Set("default_action", cfg.DefaultAction)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
