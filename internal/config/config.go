// Package config loads the process configuration from YAML.
//
// Values may reference environment variables as ${NAME}; they are expanded
// before parsing so DSN credentials can stay out of the file.
package config

import (
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/capcache/internal/capability"
	"github.com/koustreak/capcache/internal/database"
	"github.com/koustreak/capcache/internal/debug"
	"github.com/koustreak/capcache/internal/errs"
	"github.com/koustreak/capcache/internal/logger"
)

// Config is the root of the configuration file.
type Config struct {
	Log      logger.Config     `yaml:"log"`
	Cache    capability.Config `yaml:"cache"`
	Database database.Config   `yaml:"database"`
	Debug    debug.Config      `yaml:"debug"`
}

// Default returns a configuration with every section at its defaults and
// no DSN.
func Default() *Config {
	return &Config{
		Log:      *logger.DefaultConfig(),
		Cache:    *capability.DefaultConfig(),
		Database: *database.DefaultConfig(""),
		Debug:    *debug.DefaultConfig(),
	}
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read config file", err)
	}
	return Parse(data)
}

// Parse expands environment references in data, decodes it over the
// defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		// The decoder quotes offending values, which may include a DSN.
		return nil, errs.New(errs.ErrKindInvalidInput, "malformed config file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case database.DriverPostgres, database.DriverMySQL:
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errs.New(errs.ErrKindInvalidInput, "database.dsn is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return errs.Newf(errs.ErrKindInvalidInput,
			"database.min_conns (%d) exceeds max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	if c.Cache.MaxEntries < 0 {
		return errs.New(errs.ErrKindInvalidInput, "cache.max_entries must not be negative")
	}
	if _, err := capability.HasherFor(c.Cache.HashAlgorithm); err != nil {
		return err
	}
	return nil
}
