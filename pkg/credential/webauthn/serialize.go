// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package webauthn

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Credential data is stored as four slash separated fields:
//
//	<credential id hex>/<COSE public key hex>/<user handle hex>/<sign count>

func encodeCredential(c *webauthn.Credential, userHandle []byte) string {
	return strings.Join([]string{
		hex.EncodeToString(c.ID),
		hex.EncodeToString(c.PublicKey),
		hex.EncodeToString(userHandle),
		strconv.FormatUint(uint64(c.Authenticator.SignCount), 10),
	}, "/")
}

func decodeCredential(data string) (*webauthn.Credential, error) {
	parts := strings.Split(data, "/")
	if len(parts) != 4 {
		return nil, fmt.Errorf("webauthn: credential data has %d fields, want 4", len(parts))
	}
	id, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("webauthn: credential id: %w", err)
	}
	publicKey, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("webauthn: public key: %w", err)
	}
	if _, err := hex.DecodeString(parts[2]); err != nil {
		return nil, fmt.Errorf("webauthn: user handle: %w", err)
	}
	signCount, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("webauthn: sign count: %w", err)
	}
	return &webauthn.Credential{
		ID:        id,
		PublicKey: publicKey,
		Authenticator: webauthn.Authenticator{
			SignCount: uint32(signCount),
		},
	}, nil
}
