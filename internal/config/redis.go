package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// redisMaxDB is the highest logical database of a default Redis server.
const redisMaxDB = 15

// RedisConfig configures the Redis server that carries the outbox queues,
// the analytics stream and the sweep locks.
type RedisConfig struct {
	URL      string `envconfig:"URL"`
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0" validate:"min=0,max=15"`

	TLSEnabled bool `envconfig:"TLS_ENABLED" default:"false"`

	// KeyPrefix namespaces every key so deployments can share a server.
	KeyPrefix    string `envconfig:"KEY_PREFIX" default:"tagflow" validate:"required"`
	StreamMaxLen int64  `envconfig:"STREAM_MAX_LEN" default:"100000" validate:"min=1"`

	PoolSize        int           `envconfig:"POOL_SIZE" default:"50" validate:"min=1"`
	MinIdleConns    int           `envconfig:"MIN_IDLE_CONNS" default:"10" validate:"min=0"`
	DialTimeout     time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	PoolTimeout     time.Duration `envconfig:"POOL_TIMEOUT" default:"4s"`
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=0"`
	MinRetryBackoff time.Duration `envconfig:"MIN_RETRY_BACKOFF" default:"8ms"`
	MaxRetryBackoff time.Duration `envconfig:"MAX_RETRY_BACKOFF" default:"512ms"`

	PingMaxRetries int           `envconfig:"PING_MAX_RETRIES" default:"5" validate:"min=1"`
	PingBackoff    time.Duration `envconfig:"PING_BACKOFF" default:"2s"`
}

// Address is host:port. It is only used when URL is empty.
func (c *RedisConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// IsConfigured reports whether enough is set to attempt a connection.
func (c *RedisConfig) IsConfigured() bool {
	return c.URL != "" || (c.Host != "" && c.Port != "")
}

// Validate checks pool sizing, then either URL or host/port, then the
// production requirements.
func (c *RedisConfig) Validate(environment string) error {
	if c.MinIdleConns > c.PoolSize {
		return fmt.Errorf("redis min idle conns %d exceed pool size %d", c.MinIdleConns, c.PoolSize)
	}
	if err := validateNoWhitespace(c.KeyPrefix, "redis key prefix"); err != nil {
		return err
	}

	if c.URL != "" {
		if err := validateRedisURL(c.URL); err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		return nil
	}
	if err := errors.Join(validateHost(c.Host, "redis"), validatePort(c.Port, "redis")); err != nil {
		return err
	}

	if environment != EnvironmentProduction {
		return nil
	}
	switch {
	case c.Password == "":
		return errors.New("redis password is required in production")
	case !c.TLSEnabled:
		return errors.New("redis TLS is required in production")
	}
	return validatePasswordStrength(c.Password, "redis", environment)
}

// validateRedisURL accepts redis:// and rediss:// with an optional /<db> path.
func validateRedisURL(redisURL string) error {
	parsed, err := parseAndValidateURL(redisURL, []string{"redis", "rediss"})
	if err != nil {
		return err
	}

	db := strings.Trim(parsed.Path, "/")
	if db == "" {
		return nil
	}
	n, err := strconv.Atoi(db)
	if err != nil {
		return fmt.Errorf("redis db %q is not a number", db)
	}
	if n < 0 || n > redisMaxDB {
		return fmt.Errorf("redis db %d outside 0..%d", n, redisMaxDB)
	}
	return nil
}
