// Package config provides centralized configuration management for tagflow services.
// It uses envconfig for environment variable loading and validator for validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvironmentProduction is the production environment identifier
	EnvironmentProduction = "production"

	// envPrefix namespaces every variable, e.g. TAGFLOW_DB_HOST.
	envPrefix = "TAGFLOW"
)

// Config holds the complete application configuration.
// Each binary reads the same structure and uses the sections it needs.
type Config struct {
	App           AppConfig           `envconfig:"APP"`
	Server        ServerConfig        `envconfig:"SERVER"`
	Database      DatabaseConfig      `envconfig:"DB"`
	Redis         RedisConfig         `envconfig:"REDIS"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`
	Sweeper       SweeperConfig       `envconfig:"SWEEPER"`
	Engine        EngineConfig        `envconfig:"ENGINE"`
	Dashboard     DashboardConfig     `envconfig:"DASHBOARD"`
}

// AppConfig contains core application settings.
type AppConfig struct {
	Name            string        `envconfig:"NAME" default:"tagflow"`
	Version         string        `envconfig:"VERSION" default:"dev"`
	Environment     string        `envconfig:"ENV" default:"development" validate:"oneof=development staging production"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// ServerConfig holds the listeners exposed by the binaries.
type ServerConfig struct {
	API  APIConfig  `envconfig:"API"`
	GRPC GRPCConfig `envconfig:"GRPC"`
}

// Load reads configuration from environment variables with the TAGFLOW prefix.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate runs the struct-tag rules first, then the cross-field checks
// each section owns.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	env := c.App.Environment
	checks := []func() error{
		func() error { return c.Database.Validate(env) },
		func() error { return c.Redis.Validate(env) },
		func() error { return c.Server.API.Validate(env) },
		c.Server.GRPC.Validate,
		c.Observability.Validate,
		c.Sweeper.Validate,
		c.Engine.Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}

	return nil
}

// LogConfig logs the current configuration (without sensitive data).
func (c *Config) LogConfig(log *slog.Logger) {
	log.Info("configuration loaded",
		slog.String("app_name", c.App.Name),
		slog.String("version", c.App.Version),
		slog.String("environment", c.App.Environment),
		slog.String("log_level", c.App.LogLevel),
		slog.String("log_format", c.App.LogFormat),
		slog.Duration("shutdown_timeout", c.App.ShutdownTimeout),
		slog.String("api_port", c.Server.API.Port),
		slog.String("grpc_port", c.Server.GRPC.Port),
		slog.String("observability_port", c.Observability.Port),
		slog.Bool("tls_enabled", c.Server.API.TLSEnabled),
		slog.Bool("db_configured", c.Database.IsConfigured()),
		slog.Bool("redis_configured", c.Redis.IsConfigured()),
		slog.Int("sweep_batch_size", c.Sweeper.BatchSize),
		slog.Int("sweep_run_hour_utc", c.Sweeper.RunHourUTC),
		slog.String("shard", fmt.Sprintf("%d/%d", c.Sweeper.ShardIndex, c.Sweeper.ShardCount)),
		slog.String("catalog_file", c.Engine.CatalogFile),
	)
}

// minProductionPassword is the shortest secret accepted in production.
const minProductionPassword = 12

var secureSSLModes = []string{"require", "verify-ca", "verify-full"}

func validatePort(port, context string) error {
	if port == "" {
		return fmt.Errorf("%s port is required", context)
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil || n == 0 {
		return fmt.Errorf("%s port %q is not in 1..65535", context, port)
	}
	return nil
}

func validateHost(host, context string) error {
	return validateNoWhitespace(host, context+" host")
}

// validateNoWhitespace rejects empty values and values with surrounding or
// embedded blanks.
func validateNoWhitespace(value, fieldName string) error {
	switch {
	case value == "":
		return fmt.Errorf("%s is required", fieldName)
	case strings.ContainsFunc(value, unicode.IsSpace):
		return fmt.Errorf("%s must not contain whitespace", fieldName)
	}
	return nil
}

func validatePasswordStrength(password, context, environment string) error {
	if environment == EnvironmentProduction && len(password) < minProductionPassword {
		return fmt.Errorf("%s password must have at least %d characters in production", context, minProductionPassword)
	}
	return nil
}

func isSecureSSLMode(mode string) bool {
	return slices.Contains(secureSSLModes, mode)
}

// parseAndValidateURL parses rawURL and requires one of schemes and a host.
func parseAndValidateURL(rawURL string, schemes []string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("malformed URL: %w", err)
	}
	if !slices.Contains(schemes, u.Scheme) {
		return nil, fmt.Errorf("URL scheme %q not in %v", u.Scheme, schemes)
	}
	if u.Hostname() == "" {
		return nil, errors.New("URL has no host")
	}
	return u, nil
}
