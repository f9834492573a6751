package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRedisConfig_Validation(t *testing.T) {
	runLoadCases(t, []loadCase{
		{
			name: "Should parse ping retry settings and key prefix",
			envVars: mergeEnvVars(map[string]string{
				"TAGFLOW_REDIS_PING_MAX_RETRIES": "8",
				"TAGFLOW_REDIS_PING_BACKOFF":     "3s",
				"TAGFLOW_REDIS_KEY_PREFIX":       "tagflow-eu",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8, cfg.Redis.PingMaxRetries)
				assert.Equal(t, 3*time.Second, cfg.Redis.PingBackoff)
				assert.Equal(t, "tagflow-eu", cfg.Redis.KeyPrefix)
				assert.Equal(t, "localhost:6379", cfg.Redis.Address())
			},
		},
		{
			name:    "Should reject PingMaxRetries below one",
			envVars: mergeEnvVars(map[string]string{"TAGFLOW_REDIS_PING_MAX_RETRIES": "0"}),
			wantErr: true,
		},
		{
			name:    "Should reject a key prefix with spaces",
			envVars: mergeEnvVars(map[string]string{"TAGFLOW_REDIS_KEY_PREFIX": " tagflow"}),
			wantErr: true,
		},
		{
			name: "Should require TLS in production",
			envVars: withProduction(func(env map[string]string) {
				env["TAGFLOW_REDIS_TLS_ENABLED"] = "false"
			}),
			wantErr: true,
		},
		{
			name: "Should reject a redis URL with an out of range DB",
			envVars: mergeEnvVars(map[string]string{
				"TAGFLOW_REDIS_URL": "redis://localhost:6379/16",
			}),
			wantErr: true,
		},
		{
			name: "Should reject MinIdleConns above PoolSize",
			envVars: mergeEnvVars(map[string]string{
				"TAGFLOW_REDIS_POOL_SIZE":      "5",
				"TAGFLOW_REDIS_MIN_IDLE_CONNS": "10",
			}),
			wantErr: true,
		},
	})
}
