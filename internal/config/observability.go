package config

import (
	"fmt"
	"strings"
	"time"
)

// ObservabilityConfig configures the side listener every binary exposes for
// Prometheus scraping and orchestrator probes.
type ObservabilityConfig struct {
	Port    string        `envconfig:"PORT" default:"9090"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s" validate:"min=1s"`

	// ReadinessTimeout bounds one /readyz run across all dependency checks.
	ReadinessTimeout time.Duration `envconfig:"READINESS_TIMEOUT" default:"2s" validate:"min=100ms"`

	LivenessPath  string `envconfig:"LIVENESS_PATH" default:"/healthz"`
	ReadinessPath string `envconfig:"READINESS_PATH" default:"/readyz"`
	MetricsPath   string `envconfig:"METRICS_PATH" default:"/metrics"`
}

func (o *ObservabilityConfig) Validate() error {
	if err := validatePort(o.Port, "observability"); err != nil {
		return err
	}
	if o.ReadinessTimeout > o.Timeout {
		return fmt.Errorf("observability readiness_timeout (%s) cannot exceed timeout (%s)", o.ReadinessTimeout, o.Timeout)
	}

	seen := make(map[string]string, 3)
	for name, path := range map[string]string{
		"liveness":  o.LivenessPath,
		"readiness": o.ReadinessPath,
		"metrics":   o.MetricsPath,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("observability %s path must start with '/', got %q", name, path)
		}
		if other, dup := seen[path]; dup {
			return fmt.Errorf("observability %s and %s paths collide on %q", name, other, path)
		}
		seen[path] = name
	}
	return nil
}
