// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package config loads and validates the server configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Siggiio/CredentialServer/pkg/namespace"
)

var (
	ErrNoNamespaces      = errors.New("config: at least one namespace is required")
	ErrDuplicateName     = errors.New("config: duplicate namespace name")
	ErrMissingNamespace  = errors.New("config: namespace name is required")
	ErrIncompleteStorage = errors.New("config: incomplete storage configuration")
)

// Config represents the complete server configuration
type Config struct {
	Server     ServerConfig       `yaml:"server" mapstructure:"server"`
	Logging    LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	TLS        TLSConfig          `yaml:"tls" mapstructure:"tls"`
	Namespaces []namespace.Config `yaml:"namespaces" mapstructure:"namespaces"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`

	// Timeouts are in seconds; zero selects the server defaults.
	ReadTimeout  int `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout int `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  int `yaml:"idle_timeout" mapstructure:"idle_timeout"`

	// WebRoot serves static files for non-API paths when set.
	WebRoot string `yaml:"webroot" mapstructure:"webroot"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`
}

// Load reads the configuration from a YAML file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for problems a running server
// could not recover from.
func (c *Config) Validate() error {
	if len(c.Namespaces) == 0 {
		return ErrNoNamespaces
	}
	seen := make(map[string]struct{}, len(c.Namespaces))
	for _, ns := range c.Namespaces {
		if ns.Name == "" {
			return ErrMissingNamespace
		}
		if _, dup := seen[ns.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateName, ns.Name)
		}
		seen[ns.Name] = struct{}{}
		switch ns.Storage.Type {
		case "file":
			if ns.Storage.Path == "" {
				return fmt.Errorf("%w: namespace %q needs a path", ErrIncompleteStorage, ns.Name)
			}
		case "sql":
			if ns.Storage.DSN == "" {
				return fmt.Errorf("%w: namespace %q needs a dsn", ErrIncompleteStorage, ns.Name)
			}
		default:
			return fmt.Errorf("%w: namespace %q has storage type %q", ErrIncompleteStorage, ns.Name, ns.Storage.Type)
		}
		// A namespace's webauthn section is optional; when present it
		// must be complete.
		if ns.WebAuthn != nil {
			if err := ns.WebAuthn.Validate(); err != nil {
				return fmt.Errorf("config: namespace %q: %w", ns.Name, err)
			}
		}
	}
	return c.TLS.Validate()
}
