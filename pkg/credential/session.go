// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package credential

// SessionKey identifies a ceremony session. A user holds at most one
// session per mechanism and direction.
type SessionKey struct {
	Type         string
	Registration bool
}

// Session is short-lived ceremony state shared between the start and
// finish halves of a registration or login, such as a WebAuthn
// challenge or a pending TOTP secret.
type Session struct {
	key     SessionKey
	created int64 // unix millis
	expires int64 // unix millis
	data    string
	dirty   bool
}

func (s *Session) Key() SessionKey    { return s.key }
func (s *Session) Type() string       { return s.key.Type }
func (s *Session) Registration() bool { return s.key.Registration }
func (s *Session) Created() int64     { return s.created }
func (s *Session) Expires() int64     { return s.expires }
func (s *Session) Data() string       { return s.data }

// SetData replaces the ceremony payload.
func (s *Session) SetData(data string) {
	if s.data == data {
		return
	}
	s.data = data
	s.dirty = true
}

// Expired reports whether the session has lapsed at the given time in
// unix millis.
func (s *Session) Expired(now int64) bool {
	return s.expires < now
}

func (s *Session) Dirty() bool { return s.dirty }

// ClearDirty marks the session as persisted.
func (s *Session) ClearDirty() { s.dirty = false }
