// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"time"

	"github.com/Exlord/amphtml/core/authtoken"
	"github.com/Exlord/amphtml/core/interception"
)

const (
	// Default viewer message round-trip timeout in seconds.
	defaultMessageTimeoutSeconds = 20
	// Default cookie lifetime in hours (one year, matching the platform's
	// cookie expiration convention).
	defaultCookieMaxAgeHours = 365 * 24
)

// SetDefaults populates the configuration with default values.
func (cfg *ServerConfig) SetDefaults() {
	cfg.Basic.Host = "localhost"
	cfg.Basic.Port = "8280"

	cfg.Viewer.Capabilities = []string{
		interception.CapabilityXHRInterception,
		authtoken.AssistanceCapability,
	}
	cfg.Viewer.MessageTimeout = defaultMessageTimeoutSeconds * time.Second
	cfg.Viewer.FetchesPerSecond = 10
	cfg.Viewer.FetchBurst = 20

	cfg.CDN.RawTrustedOrigins = []string{"https://cdn.ampproject.org"}

	cfg.Cookie.StorePath = "./cookies.db"
	cfg.Cookie.MaxAge = defaultCookieMaxAgeHours * time.Hour

	cfg.Development.LocalDev = false

	cfg.Log.Level = "info"
	cfg.Log.Outputs = []string{"/dev/stderr"}
	cfg.Log.Format = "console"
}
