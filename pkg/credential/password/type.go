// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package password

import (
	"github.com/Siggiio/CredentialServer/pkg/credential"
)

// TypeName is the wire discriminator for password credentials.
const TypeName = "password"

// Type implements the password mechanism. Passwords need no ceremony
// state, so both start operations return an empty payload and the
// finish operations carry the password itself.
type Type struct{}

func NewType() *Type { return &Type{} }

func (t *Type) Name() string { return TypeName }

func (t *Type) StartRegistration(u *credential.User) (string, error) {
	return "", nil
}

// FinishRegistration hashes the password and enrolls it. A user holds
// at most one password, so any existing password credentials are
// replaced.
func (t *Type) FinishRegistration(u *credential.User, response string) (*credential.Credential, error) {
	if response == "" {
		return nil, nil
	}
	hash, err := Hash(response)
	if err != nil {
		return nil, credential.WrapError("password.FinishRegistration", err)
	}
	for _, existing := range u.CredentialsByType(TypeName) {
		existing.Delete()
	}
	c := credential.New(TypeName, hash)
	u.AddCredential(c)
	return c, nil
}

func (t *Type) StartLogin(u *credential.User) (string, error) {
	return "", nil
}

// FinishLogin verifies the password against the user's stored hashes.
func (t *Type) FinishLogin(u *credential.User, response string) (*credential.Credential, error) {
	for _, c := range u.CredentialsByType(TypeName) {
		if Verify(c.Data(), response) {
			c.RecordUse()
			return c, nil
		}
	}
	return nil, nil
}
