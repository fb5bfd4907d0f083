// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"

	_ "github.com/Exlord/amphtml/core/audit" // setup better logging format
	"github.com/Exlord/amphtml/core/idgen"
)

// Global exposes the server configuration.
var Global ServerConfig

// ServerConfig holds the viewer host configuration.
type ServerConfig struct {
	Build buildInfo `yaml:"-"`

	Basic struct {
		Host string `env:"AMPHOST_HOST,overwrite"  yaml:"host"`
		Port string `env:"AMPHOST_PORT,overwrite"  yaml:"port"`
		// hex form of v4.public secret key for identity tokens
		PasetoSecret string `env:"AMPHOST_SECRET"  yaml:"secret"`
	} `yaml:"basic"`

	Viewer struct {
		Capabilities   []string      `env:"AMPHOST_CAPABILITIES,overwrite"    yaml:"capabilities"`
		MessageTimeout time.Duration `env:"AMPHOST_MESSAGE_TIMEOUT,overwrite" yaml:"messageTimeout"`
		// Fetches on behalf of documents, per connection.
		FetchesPerSecond float64 `env:"AMPHOST_FETCHES_PER_SECOND,overwrite" yaml:"fetchesPerSecond"`
		FetchBurst       int     `env:"AMPHOST_FETCH_BURST,overwrite"        yaml:"fetchBurst"`
	} `yaml:"viewer"`

	CDN struct {
		RawTrustedOrigins []string   `env:"AMPHOST_TRUSTED_ORIGINS,overwrite" yaml:"trustedOrigins"`
		TrustedOrigins    []*url.URL `yaml:"-"`
	} `yaml:"cdn"`

	Cookie struct {
		StorePath string        `env:"AMPHOST_COOKIE_STORE,overwrite"   yaml:"storePath"`
		MaxAge    time.Duration `env:"AMPHOST_COOKIE_MAX_AGE,overwrite" yaml:"maxAge"`
	} `yaml:"cookie"`

	Instance struct {
		StartingTime string `yaml:"-"`
		ID           string `yaml:"-"`
	} `yaml:"-"`

	Development struct {
		LocalDev bool `env:"AMPHOST_DEV" yaml:"localDev"`
	} `yaml:"development"`

	Log struct {
		Level   string   `env:"AMPHOST_LOG_LEVEL,overwrite"   yaml:"logLevel"`
		Outputs []string `env:"AMPHOST_LOG_OUTPUTS,overwrite" yaml:"logOutputs"`
		Format  string   `env:"AMPHOST_LOG_FORMAT,overwrite"  yaml:"logFormat"`
	} `yaml:"log"`
}

// LoadConfig loads the configuration from various sources.
func (cfg *ServerConfig) LoadConfig() error {
	parsedConfigFlagValue := parseCommandLineArgs()

	// Check if the -config flag was explicitly set by the user.
	configFlagUserSet := false

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			configFlagUserSet = true
		}
	})

	var configFilePath string

	// Determine the config file path with the correct precedence:
	// 1. Command-line flag (-config)
	// 2. Environment variable (AMPHOST_CONFIGFILE)
	// 3. Default path with fallback check
	if configFlagUserSet {
		configFilePath = parsedConfigFlagValue
	} else if envVar := os.Getenv("AMPHOST_CONFIGFILE"); envVar != "" {
		configFilePath = envVar
	} else {
		configFilePath = parsedConfigFlagValue
		// Fallback check for "./config.yml".
		if _, err := os.Stat(configFilePath); os.IsNotExist(err) {
			ymlPath := "./config.yml"
			if _, statErr := os.Stat(ymlPath); statErr == nil {
				configFilePath = ymlPath
			}
		}
	}

	cfg.SetDefaults()

	cfg.Build.load()

	cfg.Instance.ID = idgen.Make()
	cfg.Instance.StartingTime = time.Now().UTC().Format("2006-01-02 15:04")

	if err := cfg.readYAML(configFilePath); err != nil {
		return fmt.Errorf("error loading YAML config: %w", err)
	}

	if err := useDotEnv(); err != nil {
		return fmt.Errorf("error using .env file: %w", err)
	}

	if err := readEnv(cfg); err != nil {
		return fmt.Errorf("error loading environment variables: %w", err)
	}

	if err := cfg.validateAndSet(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	cfg.setupAudit()

	cfg.print()

	// Heuristically check for containerized environment and warn if host is not a wildcard address.
	if isContainerized() && cfg.Basic.Host != "0.0.0.0" && cfg.Basic.Host != "::" {
		log.Warn().
			Str("host", cfg.Basic.Host).
			Msg("Running in a containerized environment but host is not a wildcard address (e.g., '0.0.0.0' or '::'). This may prevent the service from being accessible outside the container.")
	}

	return nil
}

// isContainerized checks for common indicators of a containerized environment.
//
// This is a heuristic and may not be 100% accurate.
func isContainerized() bool {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	if _, err := os.Stat("/.containerenv"); err == nil {
		return true
	}

	// #nosec G304 -- We are checking for the existence and content of a well-known system file for heuristics.
	cgroup, err := os.ReadFile("/proc/self/cgroup")
	if err == nil {
		content := string(cgroup)

		return strings.Contains(content, "docker") ||
			strings.Contains(content, "kubepods") ||
			strings.Contains(content, "containerd") ||
			strings.Contains(content, "lxc") ||
			strings.Contains(content, "crio") ||
			// systemd-nspawn containers
			strings.Contains(content, ".machine")
	}

	return false
}

// GetDurationEncoderOption returns a YAML encoder option that marshals
// time.Duration into a human-readable string format (e.g., "30m", "1h").
func GetDurationEncoderOption() yaml.EncodeOption {
	return yaml.CustomMarshaler[time.Duration](
		func(d time.Duration) ([]byte, error) {
			return yaml.Marshal(d.String())
		},
	)
}
