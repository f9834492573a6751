package config

import "time"

// DashboardConfig sizes the in-process cache in front of the aggregation queries.
type DashboardConfig struct {
	CacheCapacity int           `envconfig:"CACHE_CAPACITY" default:"256" validate:"min=1"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"30s" validate:"min=1s"`
	HistoryLimit  int           `envconfig:"HISTORY_LIMIT" default:"100" validate:"min=1,max=1000"`
}
