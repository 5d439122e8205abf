// Package config loads the backlogctl configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xraph/backlog"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// File is the on-disk configuration.
type File struct {
	Store   Store          `yaml:"store"`
	Engine  backlog.Config `yaml:"engine"`
	Metrics Metrics        `yaml:"metrics"`
	Audit   Audit          `yaml:"audit"`
	Log     Log            `yaml:"log"`
}

// Audit configures the JSON-lines audit trail written by "serve".
type Audit struct {
	// Path is appended to; empty disables the trail.
	Path string `yaml:"path"`
}

// Store selects and addresses the persistence backend.
type Store struct {
	// Driver is one of memory, sqlite, postgres, redis.
	Driver string `yaml:"driver"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection URL.
	DSN string `yaml:"dsn"`

	// Addr, Password, DB and Prefix address Redis.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Metrics configures the Prometheus endpoint served by "serve".
type Metrics struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the configuration used when no file is given.
func Default() File {
	return File{
		Store:   Store{Driver: DriverSQLite, Path: "backlog.db"},
		Engine:  backlog.DefaultConfig(),
		Metrics: Metrics{Path: "/metrics"},
		Log:     Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (File, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (f File) Validate() error {
	switch f.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if f.Store.Path == "" {
			return errors.New("config: store.path is required for sqlite")
		}
	case DriverPostgres:
		if f.Store.DSN == "" {
			return errors.New("config: store.dsn is required for postgres")
		}
	case DriverRedis:
		if f.Store.Addr == "" {
			return errors.New("config: store.addr is required for redis")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", f.Store.Driver)
	}
	if f.Engine.Concurrency < 1 {
		return fmt.Errorf("config: engine.concurrency must be positive, got %d", f.Engine.Concurrency)
	}
	if _, err := parseLevel(f.Log.Level); err != nil {
		return err
	}
	return nil
}

// Logger builds the slog logger described by the log section.
func (f File) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(f.Log.Level) //nolint:errcheck // checked by Validate
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(f.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}
