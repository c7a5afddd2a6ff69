// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package totp implements the time-based one-time password mechanism
// with a 30 second step, HMAC-SHA1, and six digit codes.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

const (
	stepMillis   = 30_000
	secretLength = 20
	codeDigits   = 1_000_000
)

// secretEncoding is RFC 4648 base32 without padding, the alphabet
// authenticator apps expect.
var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewSecret generates a shared secret for a new enrollment.
func NewSecret() ([]byte, error) {
	secret := make([]byte, secretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("totp: generating secret: %w", err)
	}
	return secret, nil
}

// EncodeSecret renders a secret in the form shown to the user.
func EncodeSecret(secret []byte) string {
	return secretEncoding.EncodeToString(secret)
}

// DecodeSecret parses a base32 secret, tolerating lowercase input.
func DecodeSecret(encoded string) ([]byte, error) {
	return secretEncoding.DecodeString(strings.ToUpper(encoded))
}

// CurrentStep returns the time step for the current clock.
func CurrentStep() int64 {
	return timeNow().UnixMilli() / stepMillis
}

// StepOf converts a unix millis timestamp to its time step.
func StepOf(millis int64) int64 {
	return millis / stepMillis
}

// CodeForStep derives the six digit code for one time step.
func CodeForStep(secret []byte, step int64) string {
	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], uint64(step))
	mac := hmac.New(sha1.New, secret)
	mac.Write(counter[:])
	sum := mac.Sum(nil)
	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", truncated%codeDigits)
}

// VerifyWindow checks a code against every step in [from, to] and
// returns the step that matched.
func VerifyWindow(secret []byte, code string, from, to int64) (int64, bool) {
	for step := from; step <= to; step++ {
		if CodeForStep(secret, step) == code {
			return step, true
		}
	}
	return 0, false
}

// normalizeCode strips whitespace, tolerating the "123 456" grouping
// apps display.
func normalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, code)
}
