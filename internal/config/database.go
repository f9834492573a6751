package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// DatabaseConfig holds the Postgres settings shared by the API, the sweeper
// and tagflowctl. Set either URL or the Host/Port/Name/User components.
type DatabaseConfig struct {
	URL      string `envconfig:"URL"`
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT"`
	Name     string `envconfig:"NAME"`
	User     string `envconfig:"USER"`
	Password string `envconfig:"PASSWORD"`
	SSLMode  string `envconfig:"SSL_MODE" default:"prefer" validate:"oneof=disable allow prefer require verify-ca verify-full"`

	// Pool sizing. A sweep holds at most BatchSize concurrent evaluations,
	// each needing one connection for the commit transaction.
	MaxConns        int           `envconfig:"MAX_CONNS" default:"25" validate:"min=1"`
	MinConns        int           `envconfig:"MIN_CONNS" default:"2" validate:"min=0"`
	MaxConnLifetime time.Duration `envconfig:"MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `envconfig:"MAX_CONN_IDLE_TIME" default:"30m"`
	ConnectTimeout  time.Duration `envconfig:"CONNECT_TIMEOUT" default:"5s"`

	PingMaxRetries int           `envconfig:"PING_MAX_RETRIES" default:"5" validate:"min=1"`
	PingBackoff    time.Duration `envconfig:"PING_BACKOFF" default:"2s"`

	ApplicationName string        `envconfig:"APPLICATION_NAME" default:"tagflow"`
	MonitorInterval time.Duration `envconfig:"MONITOR_INTERVAL" default:"15s" validate:"min=1s"`
}

// maxIdentifierLen is Postgres' NAMEDATALEN - 1.
const maxIdentifierLen = 63

// ConnectionString returns URL verbatim, or a postgres:// URL assembled from
// the components with the password escaped.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// IsConfigured reports whether enough is set to attempt a connection.
func (c *DatabaseConfig) IsConfigured() bool {
	return c.URL != "" || (c.Host != "" && c.Port != "" && c.Name != "" && c.User != "")
}

func (c *DatabaseConfig) Validate(environment string) error {
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min_conns (%d) cannot be greater than max_conns (%d)", c.MinConns, c.MaxConns)
	}

	if c.URL != "" {
		if err := validatePostgresURL(c.URL); err != nil {
			return fmt.Errorf("invalid database URL: %w", err)
		}
		return nil
	}

	if err := errors.Join(
		validateHost(c.Host, "database"),
		validatePort(c.Port, "database"),
		validateDatabaseName(c.Name),
		validateNoWhitespace(c.User, "database user"),
	); err != nil {
		return err
	}

	if environment != EnvironmentProduction {
		return nil
	}
	switch {
	case c.Password == "":
		return fmt.Errorf("database password is required in production environment")
	case !isSecureSSLMode(c.SSLMode):
		return fmt.Errorf("database SSL mode must be 'require', 'verify-ca', or 'verify-full' in production environment, got %q", c.SSLMode)
	}
	return validatePasswordStrength(c.Password, "database", environment)
}

func validatePostgresURL(dbURL string) error {
	parsed, err := parseAndValidateURL(dbURL, []string{"postgres", "postgresql"})
	if err != nil {
		return err
	}
	if parsed.User.Username() == "" {
		return fmt.Errorf("user is required in URL")
	}
	return validateDatabaseName(strings.TrimPrefix(parsed.Path, "/"))
}

func validateDatabaseName(name string) error {
	if err := validateNoWhitespace(name, "database name"); err != nil {
		return err
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("database name cannot exceed %d characters", maxIdentifierLen)
	}
	return nil
}
