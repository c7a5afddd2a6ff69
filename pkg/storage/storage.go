// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package storage defines the backend interface user aggregates are
// persisted through.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Siggiio/CredentialServer/pkg/credential"
)

var (
	// ErrCorruptRecord indicates a stored user that could not be
	// decoded.
	ErrCorruptRecord = errors.New("storage: corrupt user record")

	// ErrUnknownBackend indicates a backend type name with no
	// implementation.
	ErrUnknownBackend = errors.New("storage: unknown backend type")
)

// Backend persists user aggregates. Implementations load the whole
// aggregate on read and write only what changed on save.
type Backend interface {
	// ReadUser loads a user. An id that was never saved yields an
	// empty user, not an error.
	ReadUser(ctx context.Context, id uuid.UUID) (*credential.User, error)

	// SaveUser persists the user's pending changes and marks the
	// aggregate clean. Saving a clean user is a no-op.
	SaveUser(ctx context.Context, user *credential.User) error

	// Close releases backend resources.
	Close() error
}
