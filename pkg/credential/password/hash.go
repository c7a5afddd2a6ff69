// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package password implements the password credential mechanism with
// salted PBKDF2 hashes and legacy plaintext verification.
package password

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Stored hashes are self-describing:
//
//	PBKDF;<hash hex>;<salt hex>;<iterations>;<key bits>
//
// Verification re-reads the parameters from the stored string, so old
// hashes keep verifying after the defaults change. The legacy
// "plain;<password>" form is verify-only.
const (
	algorithmPBKDF = "PBKDF"
	algorithmPlain = "plain"

	saltLength = 32
	iterations = 100
	keyBits    = 256
)

// Hash derives a fresh salted hash of the password. Two calls for the
// same password produce different strings.
func Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: generating salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, keyBits/8, sha512.New)
	return strings.Join([]string{
		algorithmPBKDF,
		hex.EncodeToString(key),
		hex.EncodeToString(salt),
		strconv.Itoa(iterations),
		strconv.Itoa(keyBits),
	}, ";"), nil
}

// Verify checks a password against a stored hash. Malformed or
// unrecognized hashes verify as false rather than erroring, so a
// corrupt credential can never be logged in with.
func Verify(stored, password string) bool {
	parts := strings.Split(stored, ";")
	switch parts[0] {
	case algorithmPlain:
		if len(parts) != 2 {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(parts[1]), []byte(password)) == 1
	case algorithmPBKDF:
		if len(parts) != 5 {
			return false
		}
		hash, err := hex.DecodeString(parts[1])
		if err != nil {
			return false
		}
		salt, err := hex.DecodeString(parts[2])
		if err != nil {
			return false
		}
		iter, err := strconv.Atoi(parts[3])
		if err != nil || iter <= 0 {
			return false
		}
		bits, err := strconv.Atoi(parts[4])
		if err != nil || bits <= 0 || bits%8 != 0 {
			return false
		}
		derived := pbkdf2.Key([]byte(password), salt, iter, bits/8, sha512.New)
		return subtle.ConstantTimeCompare(derived, hash) == 1
	}
	return false
}
