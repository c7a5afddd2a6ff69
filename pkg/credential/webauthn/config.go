// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package webauthn implements the WebAuthn credential mechanism on top
// of the go-webauthn library, with ceremony challenges persisted in
// user sessions so start and finish may land on different server
// instances.
package webauthn

import (
	"errors"

	"github.com/go-webauthn/webauthn/webauthn"
)

var (
	ErrMissingRPID          = errors.New("webauthn: relying party ID is required")
	ErrMissingRPDisplayName = errors.New("webauthn: relying party display name is required")
	ErrMissingRPOrigins     = errors.New("webauthn: at least one origin is required")
)

// Config holds the relying party settings.
type Config struct {
	// RPDisplayName is the human readable relying party name shown by
	// authenticators.
	RPDisplayName string `yaml:"display_name" mapstructure:"display_name"`

	// RPID is the relying party identifier, normally the site's
	// effective domain.
	RPID string `yaml:"rp_id" mapstructure:"rp_id"`

	// RPOrigins lists the origins ceremonies may be performed from.
	RPOrigins []string `yaml:"origins" mapstructure:"origins"`
}

func (c *Config) Validate() error {
	if c.RPID == "" {
		return ErrMissingRPID
	}
	if c.RPDisplayName == "" {
		return ErrMissingRPDisplayName
	}
	if len(c.RPOrigins) == 0 {
		return ErrMissingRPOrigins
	}
	return nil
}

func (c *Config) toLibrary() *webauthn.Config {
	return &webauthn.Config{
		RPDisplayName: c.RPDisplayName,
		RPID:          c.RPID,
		RPOrigins:     c.RPOrigins,
	}
}
