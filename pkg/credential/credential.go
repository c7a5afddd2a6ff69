// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package credential provides the user credential aggregate: users,
// their credentials, ceremony sessions, and the registry of credential
// mechanisms that operate on them.
package credential

import (
	"time"

	"github.com/google/uuid"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

// Credential is a single enrolled authenticator for a user. The data
// field holds mechanism-specific state and is never exposed to clients.
type Credential struct {
	id       uuid.UUID
	typ      string
	name     string
	useCount int64
	lastUse  int64 // unix millis, 0 = never used
	expires  int64 // unix millis, 0 = never expires
	data     string
	dirty    bool
	deleted  bool
}

// New creates a freshly enrolled credential with a random identifier.
// The credential starts dirty so the next save persists it.
func New(typ, data string) *Credential {
	return &Credential{
		id:    uuid.New(),
		typ:   typ,
		data:  data,
		dirty: true,
	}
}

// Restore rebuilds a credential from persisted state. The result is
// clean; only subsequent mutations mark it for saving.
func Restore(id uuid.UUID, typ, name string, useCount, lastUse, expires int64, data string) *Credential {
	return &Credential{
		id:       id,
		typ:      typ,
		name:     name,
		useCount: useCount,
		lastUse:  lastUse,
		expires:  expires,
		data:     data,
	}
}

func (c *Credential) ID() uuid.UUID   { return c.id }
func (c *Credential) Type() string    { return c.typ }
func (c *Credential) Name() string    { return c.name }
func (c *Credential) UseCount() int64 { return c.useCount }
func (c *Credential) LastUse() int64  { return c.lastUse }
func (c *Credential) Expires() int64  { return c.expires }
func (c *Credential) Data() string    { return c.data }

// SetName renames the credential.
func (c *Credential) SetName(name string) {
	if c.name == name {
		return
	}
	c.name = name
	c.dirty = true
}

// SetData replaces the mechanism-specific state.
func (c *Credential) SetData(data string) {
	if c.data == data {
		return
	}
	c.data = data
	c.dirty = true
}

// SetExpires sets the absolute expiry in unix millis. Zero means the
// credential never expires.
func (c *Credential) SetExpires(expires int64) {
	if c.expires == expires {
		return
	}
	c.expires = expires
	c.dirty = true
}

// RecordUse bumps the use counter and stamps the last use time. Called
// after a successful login with this credential.
func (c *Credential) RecordUse() {
	c.useCount++
	c.lastUse = timeNow().UnixMilli()
	c.dirty = true
}

// Delete soft-deletes the credential. It stays attached to the user so
// the storage layer can remove the persisted row on the next save.
func (c *Credential) Delete() {
	c.deleted = true
}

func (c *Credential) Deleted() bool { return c.deleted }

// Expired reports whether the credential has passed its expiry at the
// given time in unix millis.
func (c *Credential) Expired(now int64) bool {
	return c.expires > 0 && c.expires < now
}

func (c *Credential) Dirty() bool { return c.dirty }

// ClearDirty marks the credential as persisted.
func (c *Credential) ClearDirty() { c.dirty = false }
