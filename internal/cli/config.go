package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/chainstore/internal/sqlstore"
)

// Config is the optional yaml configuration file. Flags override config
// values; config values override defaults.
type Config struct {
	DB      string `yaml:"db"`
	Network string `yaml:"network"`
}

// DefaultNetwork is used when neither flag nor config names one.
const DefaultNetwork = "mainnet"

// LoadConfig reads and parses the yaml config at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// applyConfig folds the config file (when given) into unset flag values and
// validates the result.
func (opts *RootOptions) applyConfig() error {
	if opts.Config != "" {
		cfg, err := LoadConfig(opts.Config)
		if err != nil {
			return err
		}
		if opts.DB == "" {
			opts.DB = cfg.DB
		}
		if opts.Network == "" {
			opts.Network = cfg.Network
		}
	}
	if opts.Network == "" {
		opts.Network = DefaultNetwork
	}
	if _, err := sqlstore.ParseNetwork(opts.Network); err != nil {
		return fmt.Errorf("invalid network: %w", err)
	}
	return nil
}

// requireDB fails early when no database path was supplied.
func (opts *RootOptions) requireDB() error {
	if opts.DB == "" {
		return fmt.Errorf("no database path: set --db or the db key in a config file")
	}
	return nil
}
