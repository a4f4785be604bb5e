// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads service configuration from defaults, an optional
// YAML file, and command-line flags, in increasing order of precedence.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Config holds the full service configuration.
type Config struct {
	Listen   string         `koanf:"listen"`
	TLS      TLSConfig      `koanf:"tls"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Session  SessionConfig  `koanf:"session"`
	Remember RememberConfig `koanf:"remember"`
	Janitor  JanitorConfig  `koanf:"janitor"`
}

// TLSConfig holds HTTPS settings for the authentication endpoints. With
// Enabled set and no file paths given, a self-signed development certificate
// is generated under the XDG state directory.
type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	// URL is the connection string. Empty selects the in-memory store,
	// which loses all state on restart.
	URL string `koanf:"url"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Format is "json" or "text".
	Format string `koanf:"format"`
}

// MetricsConfig holds observability server settings.
type MetricsConfig struct {
	Listen string `koanf:"listen"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	IdleTimeout time.Duration `koanf:"idle_timeout"`
	CookieName  string        `koanf:"cookie_name"`
	// CookieSecure marks session cookies Secure. Disable only for local
	// development over plain HTTP.
	CookieSecure bool `koanf:"cookie_secure"`
}

// RememberConfig holds remember-me token settings.
type RememberConfig struct {
	TTL        time.Duration `koanf:"ttl"`
	CookieName string        `koanf:"cookie_name"`
}

// JanitorConfig holds expired-record sweep settings.
type JanitorConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// Default returns the configuration used when no file or flags override it.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Log:    LogConfig{Format: "json"},
		Metrics: MetricsConfig{
			Listen: ":9090",
		},
		Session: SessionConfig{
			IdleTimeout:  auth.DefaultIdleTimeout,
			CookieName:   "gatehouse_session",
			CookieSecure: true,
		},
		Remember: RememberConfig{
			TTL:        auth.DefaultRememberTTL,
			CookieName: "gatehouse_remember",
		},
		Janitor: JanitorConfig{
			Interval: auth.DefaultSweepInterval,
		},
	}
}

// Load builds a Config from defaults, then the YAML file at path (if path is
// non-empty), then the given flag set (if non-nil). Later sources win.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// Defaults go into the tree first so posflag can tell an unset flag
	// apart from a missing key.
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, oops.Code("CONFIG_DEFAULTS_FAILED").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return oops.Code("CONFIG_INVALID").Errorf("listen address must not be empty")
	}
	if c.TLS.Enabled && (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return oops.Code("CONFIG_INVALID").
			Errorf("tls cert_file and key_file must be set together")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			With("format", c.Log.Format).
			Errorf("log format must be json or text")
	}
	if c.Session.IdleTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("idle_timeout", c.Session.IdleTimeout.String()).
			Errorf("session idle timeout must be positive")
	}
	if c.Session.CookieName == "" {
		return oops.Code("CONFIG_INVALID").Errorf("session cookie name must not be empty")
	}
	if c.Remember.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("ttl", c.Remember.TTL.String()).
			Errorf("remember token TTL must be positive")
	}
	if c.Remember.CookieName == "" {
		return oops.Code("CONFIG_INVALID").Errorf("remember cookie name must not be empty")
	}
	if c.Remember.CookieName == c.Session.CookieName {
		return oops.Code("CONFIG_INVALID").
			With("cookie_name", c.Session.CookieName).
			Errorf("session and remember cookies must have distinct names")
	}
	if c.Janitor.Interval <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("interval", c.Janitor.Interval.String()).
			Errorf("janitor interval must be positive")
	}
	return nil
}
