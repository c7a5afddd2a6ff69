// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package credential

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownType indicates a credential mechanism that is not
	// registered.
	ErrUnknownType = errors.New("credential: unknown credential type")

	// ErrNoSession indicates a finish operation with no matching
	// ceremony session, usually because it expired or was never
	// started.
	ErrNoSession = errors.New("credential: no ceremony session")

	// ErrNotFound indicates a credential that does not exist on the
	// user.
	ErrNotFound = errors.New("credential: credential not found")

	// ErrNoCredentials indicates a login start for a mechanism the
	// user has no credentials of.
	ErrNoCredentials = errors.New("credential: no credentials of this type")

	// ErrBadResponse indicates a client response that could not be
	// parsed.
	ErrBadResponse = errors.New("credential: malformed client response")
)

// Error wraps a failure with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapError attaches an operation name to an error, preserving nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
