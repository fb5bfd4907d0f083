// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

/*
TestLoadConfig focuses on verifying main functionality (e.g. fallback when
invalid input), and *shouldn't* need exhaustive scenarios.

No t.Parallel here: t.Setenv and parallel subtests don't mix.
*/

// TestLoadConfig verifies the behavior of the LoadConfig function.
func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string            // Description of the test case
		env     map[string]string // Environment variables and their values
		wantErr bool              // Whether an error is expected
	}{
		{
			name: "Valid configuration",
			env: map[string]string{
				"AMPHOST_HOST": "localhost",
				"AMPHOST_PORT": "8280",
			},
			wantErr: false,
		},
		{
			name: "Invalid AMPHOST_TRUSTED_ORIGINS",
			env: map[string]string{
				"AMPHOST_TRUSTED_ORIGINS": "not-an-absolute-url",
			},
			wantErr: true,
		},
		{
			name: "Negative AMPHOST_MESSAGE_TIMEOUT",
			env: map[string]string{
				"AMPHOST_MESSAGE_TIMEOUT": "-5s",
			},
			wantErr: true,
		},
		{
			name: "Empty AMPHOST_COOKIE_STORE",
			env: map[string]string{
				"AMPHOST_COOKIE_STORE": "",
			},
			wantErr: true,
		},
		{
			name: "Invalid AMPHOST_SECRET",
			env: map[string]string{
				"AMPHOST_SECRET": "definitely-not-hex",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			config := &ServerConfig{}

			err := config.LoadConfig()
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)

			require.Equal(t, tt.env["AMPHOST_HOST"], config.Basic.Host)
			require.Equal(t, tt.env["AMPHOST_PORT"], config.Basic.Port)
			require.NotEmpty(t, config.Viewer.Capabilities)
			require.NotEmpty(t, config.CDN.TrustedOrigins)
			require.NotEmpty(t, config.Basic.PasetoSecret, "an ephemeral key should have been generated")
			require.NotEmpty(t, config.Instance.ID)
		})
	}
}

func TestSetDefaults(t *testing.T) {
	t.Parallel()

	cfg := &ServerConfig{}
	cfg.SetDefaults()

	require.Equal(t, "localhost", cfg.Basic.Host)
	require.Equal(t, []string{"https://cdn.ampproject.org"}, cfg.CDN.RawTrustedOrigins)
	require.Positive(t, cfg.Viewer.MessageTimeout)
	require.Positive(t, cfg.Cookie.MaxAge)
}
