// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Exlord/amphtml/core/authtoken"
	"github.com/Exlord/amphtml/server/utils"
)

// validation errors.
var (
	errInvalidMessageTimeout = errors.New("viewer.messageTimeout must be positive")
	errInvalidFetchRate      = errors.New("viewer.fetchesPerSecond must be positive")
	errInvalidFetchBurst     = errors.New("viewer.fetchBurst must be positive")
	errEmptyCookieStorePath  = errors.New("cookie.storePath cannot be empty")
	errNegativeCookieMaxAge  = errors.New("cookie.maxAge cannot be negative")
	errEmptyCapability       = errors.New("viewer.capabilities contains an empty entry")
	errPasetoSecretInvalid   = errors.New("basic.secret is not a valid paseto key")
)

// validateAndSet validates the server configuration and populates some fields.
func (cfg *ServerConfig) validateAndSet() error {
	if cfg.Basic.Host == "" {
		cfg.Basic.Host = "localhost"
		log.Info().
			Str("host", cfg.Basic.Host).
			Msg("Binding to default host")
	}

	if cfg.Basic.Port == "" {
		cfg.Basic.Port = "8280"
		log.Info().
			Str("port", cfg.Basic.Port).
			Msg("Using default port")
	}

	if cfg.Viewer.MessageTimeout <= 0 {
		return errInvalidMessageTimeout
	}

	if cfg.Viewer.FetchesPerSecond <= 0 {
		return errInvalidFetchRate
	}

	if cfg.Viewer.FetchBurst <= 0 {
		return errInvalidFetchBurst
	}

	for _, capability := range cfg.Viewer.Capabilities {
		if capability == "" {
			return errEmptyCapability
		}
	}

	// Trusted origins are compared scheme+host; a path or query in the
	// config is almost certainly a mistake, but harmless, so only the URL
	// itself is validated here.
	cfg.CDN.TrustedOrigins = cfg.CDN.TrustedOrigins[:0]

	for _, raw := range cfg.CDN.RawTrustedOrigins {
		parsed, err := utils.ParseURL(raw, "trusted origin")
		if err != nil {
			return fmt.Errorf("invalid trusted origin %q: %w", raw, err)
		}

		cfg.CDN.TrustedOrigins = append(cfg.CDN.TrustedOrigins, parsed)
	}

	if cfg.Cookie.StorePath == "" {
		return errEmptyCookieStorePath
	}

	if cfg.Cookie.MaxAge < 0 {
		return errNegativeCookieMaxAge
	}

	if cfg.Basic.PasetoSecret == "" {
		// Identity tokens still work within this process lifetime; they just
		// don't survive a restart.
		cfg.Basic.PasetoSecret = authtoken.NewSecretKeyHex()

		log.Warn().
			Msg("No basic.secret configured, generated an ephemeral signing key")
	} else if _, err := authtoken.NewPasetoAssistance(cfg.Basic.PasetoSecret, ""); err != nil {
		key := authtoken.NewSecretKeyHex()
		log.Error().Err(err).Msgf(`Generated secret key (put this in config.yaml)\nbasic:\n  secret: "%s"`, key)

		return errPasetoSecretInvalid
	}

	return nil
}
