// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package totp

import (
	"time"

	"github.com/Siggiio/CredentialServer/pkg/credential"
)

// TypeName is the wire discriminator for TOTP credentials.
const TypeName = "totp"

// registrationValidity bounds how long a pending enrollment secret
// stays usable.
const registrationValidity = 10 * time.Minute

// Type implements the TOTP mechanism. Credential data is the shared
// secret in base32; the last use timestamp doubles as the anti-replay
// floor.
type Type struct{}

func NewType() *Type { return &Type{} }

func (t *Type) Name() string { return TypeName }

// StartRegistration mints a fresh secret and returns it base32 encoded
// for the user to load into an authenticator app. Calling it again
// rotates the pending secret; the session validity equals its early
// expiry so the existing session is never reused.
func (t *Type) StartRegistration(u *credential.User) (string, error) {
	secret, err := NewSecret()
	if err != nil {
		return "", credential.WrapError("totp.StartRegistration", err)
	}
	s := u.Session(TypeName, true, registrationValidity, registrationValidity)
	encoded := EncodeSecret(secret)
	s.SetData(encoded)
	return encoded, nil
}

// FinishRegistration proves the user holds the pending secret by
// checking the submitted code against the current step and the two
// before it, then enrolls the credential. Enrollment records a use, so
// the enrollment code cannot be replayed as a login.
func (t *Type) FinishRegistration(u *credential.User, response string) (*credential.Credential, error) {
	s := u.Session(TypeName, true, registrationValidity, 0)
	if s.Data() == "" {
		return nil, nil
	}
	secret, err := DecodeSecret(s.Data())
	if err != nil {
		return nil, nil
	}
	step := CurrentStep()
	if _, ok := VerifyWindow(secret, normalizeCode(response), step-2, step); !ok {
		return nil, nil
	}
	u.ClearSession(TypeName, true)
	c := credential.New(TypeName, EncodeSecret(secret))
	u.AddCredential(c)
	c.RecordUse()
	return c, nil
}

func (t *Type) StartLogin(u *credential.User) (string, error) {
	return "", nil
}

// FinishLogin verifies a code against each enrolled secret. The window
// reaches back two steps but never at or below the step of the
// credential's last use, so an observed code cannot be replayed.
func (t *Type) FinishLogin(u *credential.User, response string) (*credential.Credential, error) {
	code := normalizeCode(response)
	step := CurrentStep()
	for _, c := range u.CredentialsByType(TypeName) {
		secret, err := DecodeSecret(c.Data())
		if err != nil {
			continue
		}
		from := step - 2
		if floor := StepOf(c.LastUse()) + 1; c.LastUse() > 0 && floor > from {
			from = floor
		}
		if from > step {
			continue
		}
		if _, ok := VerifyWindow(secret, code, from, step); ok {
			c.RecordUse()
			return c, nil
		}
	}
	return nil, nil
}
