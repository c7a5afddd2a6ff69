// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package file persists user aggregates as JSON files sharded by the
// first bytes of the user id.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Siggiio/CredentialServer/pkg/credential"
	"github.com/Siggiio/CredentialServer/pkg/storage"
)

const (
	usersDir   = "users"
	scratchDir = "tmp"
	fileMode   = 0o600
	dirMode    = 0o700
)

// Backend stores each user as users/ab/cd/<32 hex>.json under the
// root, where ab and cd are the first two byte pairs of the id. Writes
// go to a scratch file first and are renamed into place.
type Backend struct {
	root string
}

func New(root string) (*Backend, error) {
	for _, dir := range []string{usersDir, scratchDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), dirMode); err != nil {
			return nil, fmt.Errorf("storage: preparing %s: %w", dir, err)
		}
	}
	return &Backend{root: root}, nil
}

func (b *Backend) userPath(id uuid.UUID) string {
	h := strings.ReplaceAll(id.String(), "-", "")
	return filepath.Join(b.root, usersDir, h[0:2], h[2:4], h+".json")
}

// ReadUser loads a user from its file. A missing file yields an empty
// user.
func (b *Backend) ReadUser(_ context.Context, id uuid.UUID) (*credential.User, error) {
	raw, err := os.ReadFile(b.userPath(id))
	if os.IsNotExist(err) {
		return credential.NewUser(id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: reading user %s: %w", id, err)
	}
	var record userRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("%w: user %s: %v", storage.ErrCorruptRecord, id, err)
	}
	return record.restore(id)
}

// SaveUser writes the user's current state. Soft deleted and expired
// credentials and expired sessions are not written.
func (b *Backend) SaveUser(_ context.Context, user *credential.User) error {
	if !user.Dirty() {
		return nil
	}
	raw, err := json.Marshal(newUserRecord(user))
	if err != nil {
		return fmt.Errorf("storage: encoding user %s: %w", user.ID(), err)
	}

	target := b.userPath(user.ID())
	if err := os.MkdirAll(filepath.Dir(target), dirMode); err != nil {
		return fmt.Errorf("storage: preparing user directory: %w", err)
	}
	scratch, err := os.CreateTemp(filepath.Join(b.root, scratchDir), "user-*.json")
	if err != nil {
		return fmt.Errorf("storage: creating scratch file: %w", err)
	}
	defer os.Remove(scratch.Name())

	if _, err := scratch.Write(raw); err != nil {
		scratch.Close()
		return fmt.Errorf("storage: writing user %s: %w", user.ID(), err)
	}
	if err := scratch.Close(); err != nil {
		return fmt.Errorf("storage: writing user %s: %w", user.ID(), err)
	}
	if err := os.Chmod(scratch.Name(), fileMode); err != nil {
		return fmt.Errorf("storage: writing user %s: %w", user.ID(), err)
	}
	if err := os.Rename(scratch.Name(), target); err != nil {
		return fmt.Errorf("storage: replacing user %s: %w", user.ID(), err)
	}
	user.ClearDirty()
	return nil
}

func (b *Backend) Close() error { return nil }

// Session map keys are "<type>-registration" or "<type>-login".
const (
	registrationSuffix = "-registration"
	loginSuffix        = "-login"
)

type userRecord struct {
	UserID      string                   `json:"userId"`
	Variables   map[string]string        `json:"variables,omitempty"`
	Credentials []credentialRecord       `json:"credentials,omitempty"`
	Sessions    map[string]sessionRecord `json:"sessions,omitempty"`
}

type credentialRecord struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	UseCount int64  `json:"useCount"`
	LastUse  int64  `json:"lastUse"`
	Expires  int64  `json:"expires"`
	Data     string `json:"data"`
}

type sessionRecord struct {
	Time    int64  `json:"time"`
	Expires int64  `json:"expires"`
	Data    string `json:"data"`
}

func newUserRecord(user *credential.User) userRecord {
	record := userRecord{
		UserID:    user.ID().String(),
		Variables: user.Variables(),
	}
	for _, c := range user.Credentials() {
		record.Credentials = append(record.Credentials, credentialRecord{
			ID:       c.ID().String(),
			Type:     c.Type(),
			Name:     c.Name(),
			UseCount: c.UseCount(),
			LastUse:  c.LastUse(),
			Expires:  c.Expires(),
			Data:     c.Data(),
		})
	}
	sessions := user.Sessions()
	if len(sessions) > 0 {
		record.Sessions = make(map[string]sessionRecord, len(sessions))
		for _, s := range sessions {
			suffix := loginSuffix
			if s.Registration() {
				suffix = registrationSuffix
			}
			record.Sessions[s.Type()+suffix] = sessionRecord{
				Time:    s.Created(),
				Expires: s.Expires(),
				Data:    s.Data(),
			}
		}
	}
	return record
}

func (r userRecord) restore(id uuid.UUID) (*credential.User, error) {
	user := credential.NewUser(id)
	for name, value := range r.Variables {
		user.LoadVariable(name, value)
	}
	now := time.Now().UnixMilli()
	for _, c := range r.Credentials {
		credentialID, err := uuid.Parse(c.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: credential id %q: %v", storage.ErrCorruptRecord, c.ID, err)
		}
		restored := credential.Restore(credentialID, c.Type, c.Name, c.UseCount, c.LastUse, c.Expires, c.Data)
		if restored.Expired(now) {
			continue
		}
		user.AddCredential(restored)
	}
	for key, s := range r.Sessions {
		if typ, ok := strings.CutSuffix(key, registrationSuffix); ok {
			user.RestoreSession(typ, true, s.Time, s.Expires, s.Data)
		} else if typ, ok := strings.CutSuffix(key, loginSuffix); ok {
			user.RestoreSession(typ, false, s.Time, s.Expires, s.Data)
		} else {
			return nil, fmt.Errorf("%w: session key %q", storage.ErrCorruptRecord, key)
		}
	}
	return user, nil
}
