package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperConfig_Validation(t *testing.T) {
	runLoadCases(t, []loadCase{
		{
			name: "Should load sweep tuning",
			envVars: mergeEnvVars(map[string]string{
				"TAGFLOW_SWEEPER_BATCH_SIZE":           "25",
				"TAGFLOW_SWEEPER_BATCH_DELAY":          "250ms",
				"TAGFLOW_SWEEPER_RUN_HOUR_UTC":         "5",
				"TAGFLOW_SWEEPER_SHARD_INDEX":          "2",
				"TAGFLOW_SWEEPER_SHARD_COUNT":          "4",
				"TAGFLOW_SWEEPER_AUTO_APPLY_THRESHOLD": "0.9",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 25, cfg.Sweeper.BatchSize)
				assert.Equal(t, 250*time.Millisecond, cfg.Sweeper.BatchDelay)
				assert.Equal(t, 5, cfg.Sweeper.RunHourUTC)
				assert.Equal(t, 2, cfg.Sweeper.ShardIndex)
				assert.Equal(t, 4, cfg.Sweeper.ShardCount)
				assert.Equal(t, 0.9, cfg.Sweeper.AutoApplyThreshold)
			},
		},
		{
			name:    "Should reject a zero batch size",
			envVars: mergeEnvVars(map[string]string{"TAGFLOW_SWEEPER_BATCH_SIZE": "0"}),
			wantErr: true,
		},
		{
			name:    "Should reject an hour past 23",
			envVars: mergeEnvVars(map[string]string{"TAGFLOW_SWEEPER_RUN_HOUR_UTC": "24"}),
			wantErr: true,
		},
		{
			name: "Should reject a shard index outside the shard count",
			envVars: mergeEnvVars(map[string]string{
				"TAGFLOW_SWEEPER_SHARD_INDEX": "3",
				"TAGFLOW_SWEEPER_SHARD_COUNT": "3",
			}),
			wantErr: true,
		},
		{
			name:    "Should reject an auto-apply threshold above one",
			envVars: mergeEnvVars(map[string]string{"TAGFLOW_SWEEPER_AUTO_APPLY_THRESHOLD": "1.5"}),
			wantErr: true,
		},
		{
			name:    "Should reject a tick interval under a second",
			envVars: mergeEnvVars(map[string]string{"TAGFLOW_SWEEPER_TICK_INTERVAL": "500ms"}),
			wantErr: true,
		},
	})
}

func TestEngineConfig_Validation(t *testing.T) {
	catalog := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(catalog, []byte(`{"rules":[]}`), 0o600))

	runLoadCases(t, []loadCase{
		{
			name: "Should accept an existing catalog file",
			envVars: mergeEnvVars(map[string]string{
				"TAGFLOW_ENGINE_CATALOG_FILE":     catalog,
				"TAGFLOW_ENGINE_REVIEW_THRESHOLD": "0.6",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, catalog, cfg.Engine.CatalogFile)
				assert.Equal(t, 0.6, cfg.Engine.ReviewThreshold)
			},
		},
		{
			name:    "Should reject a missing catalog file",
			envVars: mergeEnvVars(map[string]string{"TAGFLOW_ENGINE_CATALOG_FILE": "/nonexistent/catalog.json"}),
			wantErr: true,
		},
		{
			name:    "Should reject a zero review threshold",
			envVars: mergeEnvVars(map[string]string{"TAGFLOW_ENGINE_REVIEW_THRESHOLD": "0"}),
			wantErr: true,
		},
	})
}

func TestObservabilityConfig_Validation(t *testing.T) {
	runLoadCases(t, []loadCase{
		{
			name: "Should load observability port and timeout",
			envVars: mergeEnvVars(map[string]string{
				"TAGFLOW_OBSERVABILITY_PORT":    "9191",
				"TAGFLOW_OBSERVABILITY_TIMEOUT": "2s",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "9191", cfg.Observability.Port)
				assert.Equal(t, 2*time.Second, cfg.Observability.Timeout)
			},
		},
		{
			name:    "Should reject a timeout under a second",
			envVars: mergeEnvVars(map[string]string{"TAGFLOW_OBSERVABILITY_TIMEOUT": "999ms"}),
			wantErr: true,
		},
		{
			name: "Should reject a readiness timeout above the server timeout",
			envVars: mergeEnvVars(map[string]string{
				"TAGFLOW_OBSERVABILITY_TIMEOUT":           "1s",
				"TAGFLOW_OBSERVABILITY_READINESS_TIMEOUT": "3s",
			}),
			wantErr: true,
		},
		{
			name:    "Should reject colliding probe paths",
			envVars: mergeEnvVars(map[string]string{"TAGFLOW_OBSERVABILITY_READINESS_PATH": "/healthz"}),
			wantErr: true,
		},
		{
			name:    "Should reject a relative metrics path",
			envVars: mergeEnvVars(map[string]string{"TAGFLOW_OBSERVABILITY_METRICS_PATH": "metrics"}),
			wantErr: true,
		},
		{
			name:    "Should reject dashboard TTL under a second",
			envVars: mergeEnvVars(map[string]string{"TAGFLOW_DASHBOARD_CACHE_TTL": "10ms"}),
			wantErr: true,
		},
	})
}
