package config

import "time"

// GRPCConfig configures the gRPC listener that serves the standard health
// service to orchestrators that probe over gRPC.
type GRPCConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"true"`
	Port    string `envconfig:"PORT" default:"50051"`
	Host    string `envconfig:"HOST" default:"0.0.0.0"`

	KeepaliveTime    time.Duration `envconfig:"KEEPALIVE_TIME" default:"120s"`
	KeepaliveTimeout time.Duration `envconfig:"KEEPALIVE_TIMEOUT" default:"20s"`

	// HealthInterval is how often readiness checkers are re-run to update
	// the serving status.
	HealthInterval time.Duration `envconfig:"HEALTH_INTERVAL" default:"10s" validate:"min=1s"`
}

// Validate performs validation on the GRPCConfig.
func (c *GRPCConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validatePort(c.Port, "grpc"); err != nil {
		return err
	}
	return validateHost(c.Host, "grpc")
}
