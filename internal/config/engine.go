package config

import (
	"fmt"
	"os"
)

// EngineConfig tunes the rule engine.
type EngineConfig struct {
	// CatalogFile points at a JSON catalog. Empty selects the built-in catalog.
	CatalogFile string `envconfig:"CATALOG_FILE"`

	ReviewThreshold float64 `envconfig:"REVIEW_THRESHOLD" default:"0.7" validate:"gt=0,lte=1"`
}

// Validate ensures a configured catalog file is readable.
func (c *EngineConfig) Validate() error {
	if c.CatalogFile == "" {
		return nil
	}
	info, err := os.Stat(c.CatalogFile)
	if err != nil {
		return fmt.Errorf("engine catalog file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("engine catalog file %q is a directory", c.CatalogFile)
	}
	return nil
}
