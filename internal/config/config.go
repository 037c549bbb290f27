// Package config loads mallgate's startup configuration.
//
// Sources are applied in order, later ones winning:
//
//  1. built-in defaults
//  2. an optional YAML file
//  3. environment variables (a .env file next to the process is loaded
//     first, without overriding variables that are already set)
//
// The resulting Config is validated once and then passed by value into the
// components that need it; nothing below cmd/ reads the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/mallgate/internal/database"
	"github.com/koustreak/mallgate/internal/errs"
)

// Transport names accepted by Server.Transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config is the root configuration document.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig describes the single database the gateway fronts.
type DatabaseConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Name           string        `yaml:"name"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	Schema         string        `yaml:"schema"`
	SSLMode        string        `yaml:"sslmode"`
	MaxConns       int32         `yaml:"max_conns"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// LoggingConfig mirrors logger.Config minus the writer.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig selects the protocol transport.
type ServerConfig struct {
	Transport       string        `yaml:"transport"`
	ListenAddr      string        `yaml:"listen_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig configures the admin listener used in stdio mode.
// An empty ListenAddr disables it.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Name:           "mall",
			User:           "malluser",
			Schema:         "ec_ectlocal",
			SSLMode:        "disable",
			MaxConns:       database.DefaultMaxConns,
			IdleTimeout:    database.DefaultIdleTimeout,
			ConnectTimeout: database.DefaultConnectTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Transport:       TransportStdio,
			ListenAddr:      ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty or the file does not exist) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, errs.Wrap(errs.ErrKindConfiguration, fmt.Sprintf("read config file %s", path), err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errs.Wrap(errs.ErrKindConfiguration, fmt.Sprintf("parse config file %s", path), err)
			}
		}
	}

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errs.Wrap(errs.ErrKindConfiguration, "load .env", err)
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables on cfg. lookup is os.LookupEnv
// outside tests.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindConfiguration, "invalid "+key, err)
		}
		*dst = d
		return nil
	}

	str("DB_HOST", &cfg.Database.Host)
	str("DB_NAME", &cfg.Database.Name)
	str("DB_USER", &cfg.Database.User)
	str("ECTLOCAL_DB_PASSWORD", &cfg.Database.Password)
	str("DB_PASSWORD", &cfg.Database.Password)
	str("DB_SCHEMA", &cfg.Database.Schema)
	str("DB_SSLMODE", &cfg.Database.SSLMode)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	str("MCP_TRANSPORT", &cfg.Server.Transport)
	str("MCP_LISTEN_ADDR", &cfg.Server.ListenAddr)
	str("METRICS_LISTEN_ADDR", &cfg.Metrics.ListenAddr)

	if v, ok := lookup("DB_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindConfiguration, "invalid DB_PORT", err)
		}
		cfg.Database.Port = port
	}
	if v, ok := lookup("DB_MAX_CONNS"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return errs.Wrap(errs.ErrKindConfiguration, "invalid DB_MAX_CONNS", err)
		}
		cfg.Database.MaxConns = int32(n)
	}
	if err := dur("DB_IDLE_TIMEOUT", &cfg.Database.IdleTimeout); err != nil {
		return err
	}
	return dur("DB_CONNECT_TIMEOUT", &cfg.Database.ConnectTimeout)
}

// Validate reports the first configuration problem as an errs
// Configuration error.
func (c *Config) Validate() error {
	if err := c.PoolConfig().Validate(); err != nil {
		return err
	}
	switch c.Server.Transport {
	case TransportStdio:
	case TransportHTTP:
		if c.Server.ListenAddr == "" {
			return errs.New(errs.ErrKindConfiguration, "server.listen_addr is required for the http transport")
		}
	default:
		return errs.Newf(errs.ErrKindConfiguration, "unknown transport %q", c.Server.Transport)
	}
	return nil
}

// PoolConfig converts the database section into the gateway's immutable
// pool configuration.
func (c *Config) PoolConfig() database.Config {
	d := c.Database
	return database.Config{
		Host:           d.Host,
		Port:           d.Port,
		Database:       d.Name,
		User:           d.User,
		Password:       d.Password,
		Schema:         d.Schema,
		SSLMode:        d.SSLMode,
		MaxConns:       d.MaxConns,
		IdleTimeout:    d.IdleTimeout,
		ConnectTimeout: d.ConnectTimeout,
	}
}
