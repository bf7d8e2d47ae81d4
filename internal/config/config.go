// Package config resolves where and how the state store is kept. Values are
// layered: built-in defaults, the YAML config file, .env files, DOSEKEEP_*
// environment variables, then whatever the CLI flags override.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/julianstephens/dosekeep/internal/constants"
)

// Config is the resolved runtime configuration.
type Config struct {
	// Backend is one of file, sqlite, postgres or memory.
	Backend string `yaml:"backend"`
	// Path is the state directory for the file backend or the database file
	// for sqlite. Empty means a default under Dir.
	Path     string   `yaml:"path,omitempty"`
	Timezone string   `yaml:"timezone,omitempty"`
	Debug    bool     `yaml:"debug"`
	Metrics  bool     `yaml:"metrics"`
	DB       DBConfig `yaml:"db,omitempty"`

	// Dir is the config directory; logs, backups and the lockfile live here.
	Dir string `yaml:"-"`
}

// DBConfig holds the password-free Postgres connection string.
type DBConfig struct {
	Connection string `yaml:"connection,omitempty"`
}

// Default returns the configuration used when nothing else is set.
func Default(dir string) Config {
	return Config{
		Backend: constants.BackendSQLite,
		Dir:     dir,
	}
}

// Load reads <dir>/config.yaml when present and applies environment
// overrides. A missing file is not an error.
func Load(dir string) (Config, error) {
	dir, err := ExpandHome(dir)
	if err != nil {
		return Config{}, err
	}
	cfg := Default(dir)

	loadEnvFiles(dir)

	path := filepath.Join(dir, constants.DefaultConfigFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.Dir = dir
	return cfg, nil
}

// loadEnvFiles loads .env from the working directory and the config
// directory. Variables already set in the environment win.
func loadEnvFiles(dir string) {
	for _, p := range []string{".env", filepath.Join(dir, ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(constants.EnvPrefix + "BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv(constants.EnvPrefix + "PATH"); v != "" {
		c.Path = v
	}
	if v := os.Getenv(constants.EnvPrefix + "TIMEZONE"); v != "" {
		c.Timezone = v
	}
	for name, dst := range map[string]*bool{"DEBUG": &c.Debug, "METRICS": &c.Metrics} {
		v := os.Getenv(constants.EnvPrefix + name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s value %q: %w", constants.EnvPrefix, name, v, err)
		}
		*dst = b
	}
	return nil
}

// Validate checks the backend name and timezone.
func (c Config) Validate() error {
	switch c.Backend {
	case constants.BackendFile, constants.BackendSQLite, constants.BackendPostgres, constants.BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q (want file, sqlite, postgres or memory)", c.Backend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the timezone calendar days are computed in.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// StorePath returns the resolved state path for file and sqlite backends.
func (c Config) StorePath() (string, error) {
	if c.Path != "" {
		return ExpandHome(c.Path)
	}
	switch c.Backend {
	case constants.BackendFile:
		return filepath.Join(c.Dir, constants.DefaultStateFile), nil
	case constants.BackendSQLite:
		return filepath.Join(c.Dir, constants.DefaultSQLiteFile), nil
	}
	return "", nil
}

// Save writes c to <Dir>/config.yaml.
func (c Config) Save() error {
	if err := os.MkdirAll(c.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	path := filepath.Join(c.Dir, constants.DefaultConfigFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
