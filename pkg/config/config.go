// Package config handles interpreting the pgdial.json config file.
package config

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"iter"
	"os"
	"time"

	"github.com/pgdial/pgdial/pkg/client"
)

// Config holds the pgdial configuration.
type Config struct {
	// Host is the server to connect to.
	Host string `json:"host"`
	// Port defaults to 5432.
	Port uint16 `json:"port,omitempty"`
	// Database defaults to "postgres".
	Database string `json:"database,omitempty"`

	Username SecretRef `json:"username"`
	Password SecretRef `json:"password"`

	// ApplicationName is reported to the server; defaults to "pgdial".
	ApplicationName string `json:"application_name,omitempty"`

	// PoolSize bounds concurrent connections; defaults to 4.
	PoolSize int `json:"pool_size,omitempty"`

	// ConnectTimeoutSeconds bounds dial plus handshake. Zero disables.
	ConnectTimeoutSeconds int `json:"connect_timeout_seconds,omitempty"`
	// QueryTimeoutSeconds bounds each query. Zero disables.
	QueryTimeoutSeconds int `json:"query_timeout_seconds,omitempty"`
}

// DefaultPoolSize is used when pool_size is omitted.
const DefaultPoolSize = 4

// ParseConfig parses a JSON configuration string and returns a Config.
func ParseConfig(jsonStr string) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal([]byte(jsonStr), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReadConfigFile reads and parses a configuration file from the given path.
func ReadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(string(data))
}

// Secrets returns an iterator over all secret references in the config.
// Each secret is yielded with a description of where it appears.
func (c *Config) Secrets() iter.Seq2[string, SecretRef] {
	return func(yield func(string, SecretRef) bool) {
		if !yield("username", c.Username) {
			return
		}
		yield("password", c.Password)
	}
}

// Validate verifies the configuration: the host is set, the pool size is
// sane, and every secret is accessible. It does not stop at the first
// error; all errors are accumulated and returned together.
func (c *Config) Validate(ctx context.Context, secrets *SecretCache) error {
	var errs []error

	if c.Host == "" {
		errs = append(errs, errors.New("host must be set"))
	}
	if c.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("pool_size must be positive, got %d", c.PoolSize))
	}

	for path, ref := range c.Secrets() {
		if err := ref.Validate(); err != nil {
			errs = append(errs, errors.Join(errors.New(path), err))
			continue
		}
		if _, err := secrets.Get(ctx, ref); err != nil {
			errs = append(errs, errors.Join(errors.New(path), err))
		}
	}

	return errors.Join(errs...)
}

// ClientConfig resolves secrets and builds the client configuration.
func (c *Config) ClientConfig(ctx context.Context, secrets *SecretCache) (client.Config, error) {
	username, err := secrets.Get(ctx, c.Username)
	if err != nil {
		return client.Config{}, fmt.Errorf("resolve username: %w", err)
	}
	password, err := secrets.Get(ctx, c.Password)
	if err != nil {
		return client.Config{}, fmt.Errorf("resolve password: %w", err)
	}

	cfg := client.NewConfig(c.Host, c.Port).
		WithDatabase(c.Database).
		WithCredentials(username, password).
		WithApplicationName(c.ApplicationName).
		WithConnectTimeout(time.Duration(c.ConnectTimeoutSeconds) * time.Second).
		WithQueryTimeout(time.Duration(c.QueryTimeoutSeconds) * time.Second)
	return cfg, nil
}

// EffectivePoolSize returns pool_size or the default.
func (c *Config) EffectivePoolSize() int {
	if c.PoolSize > 0 {
		return c.PoolSize
	}
	return DefaultPoolSize
}
