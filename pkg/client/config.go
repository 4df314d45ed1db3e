package client

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pgdial/pgdial/pkg/observability"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultPort            = 5432
	DefaultDatabase        = "postgres"
	DefaultApplicationName = "pgdial"
)

// Config describes how to reach and authenticate with a server. The zero
// value is not usable; at minimum Host and Credentials must be set.
//
// TLS is not configured here. Dial opens a plain TCP stream; callers that
// need TLS (or any other transport) establish the stream themselves and
// hand it to Connect.
type Config struct {
	Host        string
	Port        uint16
	Database    string
	Credentials Credentials

	// ApplicationName is reported to the server in the startup message.
	ApplicationName string

	// ConnectTimeout bounds Dial plus the handshake. Zero means no limit
	// beyond the caller's context.
	ConnectTimeout time.Duration

	// QueryTimeout bounds each query execution. Zero means no limit
	// beyond the caller's context.
	QueryTimeout time.Duration

	// Logger receives connection lifecycle events. Nil disables logging.
	Logger *slog.Logger

	// Metrics receives connection and query metrics. Nil disables them.
	Metrics *observability.Metrics
}

// NewConfig creates a Config for host:port with defaults for everything
// else.
func NewConfig(host string, port uint16) Config {
	return Config{Host: host, Port: port}
}

// WithDatabase returns a copy with the database set.
func (c Config) WithDatabase(database string) Config {
	c.Database = database
	return c
}

// WithCredentials returns a copy with the credentials set.
func (c Config) WithCredentials(username, password string) Config {
	c.Credentials = NewCredentials(username, password)
	return c
}

// WithApplicationName returns a copy with the application name set.
func (c Config) WithApplicationName(name string) Config {
	c.ApplicationName = name
	return c
}

// WithConnectTimeout returns a copy with the connect timeout set.
func (c Config) WithConnectTimeout(d time.Duration) Config {
	c.ConnectTimeout = d
	return c
}

// WithQueryTimeout returns a copy with the query timeout set.
func (c Config) WithQueryTimeout(d time.Duration) Config {
	c.QueryTimeout = d
	return c
}

// Addr returns the host:port dial address.
func (c Config) Addr() string {
	cfg := c.withDefaults()
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.ApplicationName == "" {
		c.ApplicationName = DefaultApplicationName
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}
