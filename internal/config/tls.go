// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package config

import (
	"crypto/tls"
	"errors"
	"fmt"
)

// ErrIncompleteTLS indicates TLS enabled without both certificate and
// key files.
var ErrIncompleteTLS = errors.New("config: tls requires cert_file and key_file")

// TLSConfig controls the HTTPS listener.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	CertFile string `yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `yaml:"key_file" mapstructure:"key_file"`
}

func (c *TLSConfig) Validate() error {
	if c.Enabled && (c.CertFile == "" || c.KeyFile == "") {
		return ErrIncompleteTLS
	}
	return nil
}

// Build loads the certificate pair. Returns nil when TLS is disabled.
func (c *TLSConfig) Build() (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	pair, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("config: loading tls certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
