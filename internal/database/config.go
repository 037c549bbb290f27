package database

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/koustreak/mallgate/internal/errs"
)

// Pool defaults.
const (
	DefaultMaxConns       = 10
	DefaultIdleTimeout    = 30 * time.Second
	DefaultConnectTimeout = 2 * time.Second
	DefaultPort           = 5432
)

// Config holds all settings needed to connect to and pool one database.
// It is treated as immutable once a gateway has been built from it.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// Schema is applied as the search scope on every connection checkout.
	Schema string

	// Pool tuning
	MaxConns    int32         // maximum simultaneous checkouts
	IdleTimeout time.Duration // idle connections older than this are recycled

	// ConnectTimeout bounds both dialing a new connection and waiting for a
	// free pool slot.
	ConnectTimeout time.Duration
}

// Validate checks the fields a gateway cannot start without. Zero pool
// settings are not errors; WithDefaults fills them in.
func (c Config) Validate() error {
	if c.Password == "" {
		return errs.New(errs.ErrKindConfiguration, "database password is required")
	}
	if c.Host == "" {
		return errs.New(errs.ErrKindConfiguration, "database host is required")
	}
	if c.Schema == "" {
		return errs.New(errs.ErrKindConfiguration, "database schema is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return errs.Newf(errs.ErrKindConfiguration, "database port %d out of range", c.Port)
	}
	if c.MaxConns < 0 {
		return errs.Newf(errs.ErrKindConfiguration, "max connections must be positive, got %d", c.MaxConns)
	}
	return nil
}

// WithDefaults returns a copy of c with zero pool settings replaced by the
// package defaults.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	return c
}

// DSN renders the connection URL. The password is escaped, never logged.
func (c Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%s", c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
