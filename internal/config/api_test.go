package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIConfig_Validation(t *testing.T) {
	runLoadCases(t, []loadCase{
		{
			name: "Should accept an API key hash outside production",
			envVars: mergeEnvVars(map[string]string{
				"TAGFLOW_SERVER_API_API_KEY_HASH": "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Len(t, cfg.Server.API.APIKeyHash, 64)
			},
		},
		{
			name: "Should reject a hash of the wrong length",
			envVars: mergeEnvVars(map[string]string{
				"TAGFLOW_SERVER_API_API_KEY_HASH": "abc123",
			}),
			wantErr: true,
		},
		{
			name: "Should reject a non-hex hash",
			envVars: mergeEnvVars(map[string]string{
				"TAGFLOW_SERVER_API_API_KEY_HASH": "zz86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
			}),
			wantErr: true,
		},
		{
			name: "Should reject TLS without certificate files",
			envVars: mergeEnvVars(map[string]string{
				"TAGFLOW_SERVER_API_TLS_ENABLED": "true",
			}),
			wantErr: true,
		},
		{
			name:    "Should reject an out of range port",
			envVars: mergeEnvVars(map[string]string{"TAGFLOW_SERVER_API_PORT": "70000"}),
			wantErr: true,
		},
		{
			name:    "Should reject an out of range gRPC port",
			envVars: mergeEnvVars(map[string]string{"TAGFLOW_SERVER_GRPC_PORT": "0"}),
			wantErr: true,
		},
		{
			name: "Should skip gRPC listener checks when disabled",
			envVars: mergeEnvVars(map[string]string{
				"TAGFLOW_SERVER_GRPC_ENABLED": "false",
				"TAGFLOW_SERVER_GRPC_PORT":    "0",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Server.GRPC.Enabled)
			},
		},
	})
}
