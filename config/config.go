/*
config.go - Service configuration

PURPOSE:
  Loads server, database, logging and metrics settings.

PRECEDENCE (later wins):
  1. Built-in defaults
  2. YAML file (optional, path from -config or COSTSHARE_CONFIG)
  3. Environment variables, optionally read from a .env file
  4. Command-line flags (applied by cmd/server)

ENVIRONMENT:
  COSTSHARE_PORT, COSTSHARE_DB_DRIVER, COSTSHARE_DB_DSN,
  COSTSHARE_LOG_LEVEL, COSTSHARE_LOG_FORMAT, COSTSHARE_METRICS_ENABLED,
  COSTSHARE_ALLOWED_ORIGINS (comma separated)
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	// Driver is "sqlite3" or "pgx".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "costshare.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment.
func Load(path string) (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("COSTSHARE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("COSTSHARE_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid COSTSHARE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v, ok := os.LookupEnv("COSTSHARE_ALLOWED_ORIGINS"); ok {
		cfg.Server.AllowedOrigins = splitCSV(v)
	}
	if v, ok := os.LookupEnv("COSTSHARE_DB_DRIVER"); ok {
		cfg.Database.Driver = v
	}
	if v, ok := os.LookupEnv("COSTSHARE_DB_DSN"); ok {
		cfg.Database.DSN = v
	}
	if v, ok := os.LookupEnv("COSTSHARE_LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := os.LookupEnv("COSTSHARE_LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	if v, ok := os.LookupEnv("COSTSHARE_METRICS_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid COSTSHARE_METRICS_ENABLED: %w", err)
		}
		cfg.Metrics.Enabled = enabled
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/': %q", c.Metrics.Path)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
