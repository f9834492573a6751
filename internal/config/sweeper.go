package config

import (
	"fmt"
	"time"
)

// SweeperConfig contains configuration for the daily evaluation worker.
type SweeperConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// BatchSize bounds concurrent evaluations; it is also the page size.
	BatchSize  int           `envconfig:"BATCH_SIZE" default:"50" validate:"min=1,max=1000"`
	BatchDelay time.Duration `envconfig:"BATCH_DELAY" default:"100ms" validate:"min=0"`

	// RunHourUTC is the hour from which today's sweep is due.
	RunHourUTC   int           `envconfig:"RUN_HOUR_UTC" default:"2" validate:"min=0,max=23"`
	TickInterval time.Duration `envconfig:"TICK_INTERVAL" default:"1m" validate:"min=1s"`
	LockTTL      time.Duration `envconfig:"LOCK_TTL" default:"2h" validate:"min=1m"`

	// Sharding splits the customer base across instances.
	ShardIndex int `envconfig:"SHARD_INDEX" default:"0" validate:"min=0"`
	ShardCount int `envconfig:"SHARD_COUNT" default:"1" validate:"min=1"`

	// AutoApplyThreshold is the minimum confidence for unattended applies.
	AutoApplyThreshold float64 `envconfig:"AUTO_APPLY_THRESHOLD" default:"0.8" validate:"gt=0,lte=1"`
}

// Validate checks cross-field constraints.
func (c *SweeperConfig) Validate() error {
	if c.ShardIndex >= c.ShardCount {
		return fmt.Errorf("sweeper shard_index (%d) must be lower than shard_count (%d)", c.ShardIndex, c.ShardCount)
	}
	return nil
}
