package database

import (
	"fmt"
	"net"
	"net/url"
	"time"
)

// Config holds Postgres connection settings for the session table.
type Config struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	// ReadyTimeoutSeconds bounds how long migrations wait for the server to accept connections.
	ReadyTimeoutSeconds int `yaml:"ready_timeout_seconds" envconfig:"DB_READY_TIMEOUT_SECONDS"`
}

// Normalize fills defaults for optional fields.
func (c *Config) Normalize() {
	if c.Port == "" {
		c.Port = "5432"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 10
	}
	if c.ReadyTimeoutSeconds <= 0 {
		c.ReadyTimeoutSeconds = 30
	}
}

// Validate reports missing connection fields.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("database.host is required")
	case c.User == "":
		return fmt.Errorf("database.user is required")
	case c.Name == "":
		return fmt.Errorf("database.name is required")
	}
	return nil
}

// KeywordDSN renders the lib/pq keyword/value connection string.
func (c Config) KeywordDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// URL renders the postgres:// form expected by golang-migrate.
func (c Config) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// ReadyTimeout returns the readiness wait as a duration.
func (c Config) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutSeconds) * time.Second
}
