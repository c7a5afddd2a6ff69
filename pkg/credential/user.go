// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package credential

import (
	"time"

	"github.com/google/uuid"
)

// User aggregates everything the server knows about one identity in a
// namespace: metadata variables, enrolled credentials, and in-flight
// ceremony sessions. A User is not safe for concurrent use; callers
// serialize access per user.
type User struct {
	id          uuid.UUID
	variables   map[string]string
	changed     map[string]struct{}
	credentials []*Credential
	sessions    map[SessionKey]*Session
	removed     []SessionKey
	dirty       bool
}

// NewUser creates an empty user. A user with no credentials is
// indistinguishable from one that was never stored.
func NewUser(id uuid.UUID) *User {
	return &User{
		id:        id,
		variables: make(map[string]string),
		changed:   make(map[string]struct{}),
		sessions:  make(map[SessionKey]*Session),
	}
}

func (u *User) ID() uuid.UUID { return u.id }

// Variable returns the value of a metadata variable.
func (u *User) Variable(name string) (string, bool) {
	v, ok := u.variables[name]
	return v, ok
}

// SetVariable sets a metadata variable and records it for persistence.
// Setting the empty string clears the variable.
func (u *User) SetVariable(name, value string) {
	if cur, ok := u.variables[name]; ok && cur == value {
		return
	}
	if value == "" {
		if _, ok := u.variables[name]; !ok {
			return
		}
		delete(u.variables, name)
	} else {
		u.variables[name] = value
	}
	u.changed[name] = struct{}{}
}

// LoadVariable installs a variable during a storage read without
// marking it changed.
func (u *User) LoadVariable(name, value string) {
	u.variables[name] = value
}

// Variables returns a copy of all metadata variables.
func (u *User) Variables() map[string]string {
	out := make(map[string]string, len(u.variables))
	for k, v := range u.variables {
		out[k] = v
	}
	return out
}

// ChangedVariables lists variable names modified since the last save.
// A changed name whose variable no longer exists was cleared.
func (u *User) ChangedVariables() []string {
	out := make([]string, 0, len(u.changed))
	for name := range u.changed {
		out = append(out, name)
	}
	return out
}

// DisplayName returns the displayName variable, falling back to the
// user id.
func (u *User) DisplayName() string {
	if v, ok := u.variables["displayName"]; ok {
		return v
	}
	return u.id.String()
}

// AddCredential attaches a credential to the user.
func (u *User) AddCredential(c *Credential) {
	u.credentials = append(u.credentials, c)
}

// Credentials returns the user's live credentials: not deleted and not
// expired.
func (u *User) Credentials() []*Credential {
	now := timeNow().UnixMilli()
	var out []*Credential
	for _, c := range u.credentials {
		if c.Deleted() || c.Expired(now) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// AllCredentials returns every attached credential, including soft
// deleted ones still pending removal from storage.
func (u *User) AllCredentials() []*Credential {
	return u.credentials
}

// CredentialsByType returns the live credentials of one mechanism.
func (u *User) CredentialsByType(typ string) []*Credential {
	var out []*Credential
	for _, c := range u.Credentials() {
		if c.Type() == typ {
			out = append(out, c)
		}
	}
	return out
}

// CredentialByID returns the live credential with the given id, or nil.
func (u *User) CredentialByID(id uuid.UUID) *Credential {
	for _, c := range u.Credentials() {
		if c.ID() == id {
			return c
		}
	}
	return nil
}

// Session returns the ceremony session for a mechanism and direction,
// minting a new one when none exists or the current one is within
// expireEarly of lapsing. When validity does not exceed expireEarly the
// existing session is never reused, which lets a start operation rotate
// its ceremony state on every call.
func (u *User) Session(typ string, registration bool, validity, expireEarly time.Duration) *Session {
	key := SessionKey{Type: typ, Registration: registration}
	now := timeNow().UnixMilli()
	if validity > expireEarly {
		if s, ok := u.sessions[key]; ok && s.expires-expireEarly.Milliseconds() >= now {
			return s
		}
	}
	s := &Session{
		key:     key,
		created: now,
		expires: now + validity.Milliseconds(),
		dirty:   true,
	}
	u.sessions[key] = s
	return s
}

// ClearSession drops the ceremony session for a mechanism and
// direction, typically after the ceremony finishes.
func (u *User) ClearSession(typ string, registration bool) {
	key := SessionKey{Type: typ, Registration: registration}
	if _, ok := u.sessions[key]; ok {
		delete(u.sessions, key)
		u.removed = append(u.removed, key)
		u.dirty = true
	}
}

// RemovedSessions lists sessions cleared since the last save, so a
// diffing storage backend can delete their rows.
func (u *User) RemovedSessions() []SessionKey {
	return u.removed
}

// RestoreSession installs a session during a storage read. Expired
// sessions are restored too so a diffing backend can still remove
// their rows on the next save.
func (u *User) RestoreSession(typ string, registration bool, created, expires int64, data string) {
	key := SessionKey{Type: typ, Registration: registration}
	u.sessions[key] = &Session{key: key, created: created, expires: expires, data: data}
}

// Sessions returns the user's unexpired ceremony sessions.
func (u *User) Sessions() []*Session {
	now := timeNow().UnixMilli()
	out := make([]*Session, 0, len(u.sessions))
	for _, s := range u.sessions {
		if s.Expired(now) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// AllSessions returns every session, including expired ones awaiting
// removal from storage.
func (u *User) AllSessions() []*Session {
	out := make([]*Session, 0, len(u.sessions))
	for _, s := range u.sessions {
		out = append(out, s)
	}
	return out
}

// Dirty reports whether anything about the user needs saving. It is
// computed from the user's own state and all children rather than
// propagated upward on every mutation. Expired credentials and sessions
// count as pending work: their persisted rows still need removing.
func (u *User) Dirty() bool {
	if u.dirty || len(u.changed) > 0 {
		return true
	}
	now := timeNow().UnixMilli()
	for _, c := range u.credentials {
		if c.Dirty() || c.Deleted() || c.Expired(now) {
			return true
		}
	}
	for _, s := range u.sessions {
		if s.Dirty() || s.Expired(now) {
			return true
		}
	}
	return false
}

// ClearDirty marks the whole aggregate as persisted. The storage layer
// calls this after a successful save. Soft deleted credentials are
// detached here; their rows are gone.
func (u *User) ClearDirty() {
	u.dirty = false
	u.changed = make(map[string]struct{})
	kept := u.credentials[:0]
	for _, c := range u.credentials {
		if c.Deleted() {
			continue
		}
		c.ClearDirty()
		kept = append(kept, c)
	}
	u.credentials = kept
	u.removed = nil
	for _, s := range u.sessions {
		s.ClearDirty()
	}
}
