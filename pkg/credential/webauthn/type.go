// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package webauthn

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/Siggiio/CredentialServer/pkg/credential"
)

// TypeName is the wire discriminator for WebAuthn credentials.
const TypeName = "webauthn"

// ceremonyValidity bounds how long a challenge stays answerable. Start
// operations reuse an existing challenge only through the first half of
// its life, so a client always gets at least that long to respond.
const ceremonyValidity = 10 * time.Minute

// Type implements the WebAuthn mechanism. The challenge for an
// in-flight ceremony lives in the user's session as lowercase hex, and
// the library's own session bookkeeping is rebuilt around it on finish.
type Type struct {
	rp *webauthn.WebAuthn
}

func NewType(cfg Config) (*Type, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rp, err := webauthn.New(cfg.toLibrary())
	if err != nil {
		return nil, credential.WrapError("webauthn.NewType", err)
	}
	return &Type{rp: rp}, nil
}

func (t *Type) Name() string { return TypeName }

// StartRegistration returns the credential creation options for the
// client. A still-fresh pending ceremony keeps its challenge; otherwise
// the library's new challenge is persisted.
func (t *Type) StartRegistration(u *credential.User) (string, error) {
	options, _, err := t.rp.BeginRegistration(ceremonyUser{u})
	if err != nil {
		return "", credential.WrapError("webauthn.StartRegistration", err)
	}
	s := u.Session(TypeName, true, ceremonyValidity, ceremonyValidity/2)
	challenge, err := sessionChallenge(s, options.Response.Challenge)
	if err != nil {
		return "", credential.WrapError("webauthn.StartRegistration", err)
	}
	options.Response.Challenge = challenge
	encoded, err := json.Marshal(options)
	if err != nil {
		return "", credential.WrapError("webauthn.StartRegistration", err)
	}
	return string(encoded), nil
}

// FinishRegistration verifies the authenticator's attestation against
// the persisted challenge and enrolls the credential. Enrollment does
// not count as a use.
func (t *Type) FinishRegistration(u *credential.User, response string) (*credential.Credential, error) {
	s := u.Session(TypeName, true, ceremonyValidity, 0)
	challenge, err := hex.DecodeString(s.Data())
	if err != nil || len(challenge) == 0 {
		return nil, nil
	}
	parsed, err := protocol.ParseCredentialCreationResponseBody(strings.NewReader(response))
	if err != nil {
		return nil, nil
	}
	user := ceremonyUser{u}
	_, sd, err := t.rp.BeginRegistration(user)
	if err != nil {
		return nil, credential.WrapError("webauthn.FinishRegistration", err)
	}
	sd.Challenge = base64.RawURLEncoding.EncodeToString(challenge)
	enrolled, err := t.rp.CreateCredential(user, *sd, parsed)
	if err != nil {
		return nil, nil
	}
	u.ClearSession(TypeName, true)
	c := credential.New(TypeName, encodeCredential(enrolled, user.WebAuthnID()))
	u.AddCredential(c)
	return c, nil
}

// StartLogin returns the credential request options for the client.
// The user must already hold a WebAuthn credential.
func (t *Type) StartLogin(u *credential.User) (string, error) {
	options, _, err := t.rp.BeginLogin(ceremonyUser{u})
	if err != nil {
		return "", credential.WrapError("webauthn.StartLogin", err)
	}
	s := u.Session(TypeName, false, ceremonyValidity, ceremonyValidity/2)
	challenge, err := sessionChallenge(s, options.Response.Challenge)
	if err != nil {
		return "", credential.WrapError("webauthn.StartLogin", err)
	}
	options.Response.Challenge = challenge
	encoded, err := json.Marshal(options)
	if err != nil {
		return "", credential.WrapError("webauthn.StartLogin", err)
	}
	return string(encoded), nil
}

// FinishLogin verifies the assertion against the persisted challenge
// and records a use on the matched credential. The stored sign count
// is left as enrolled.
func (t *Type) FinishLogin(u *credential.User, response string) (*credential.Credential, error) {
	s := u.Session(TypeName, false, ceremonyValidity, 0)
	challenge, err := hex.DecodeString(s.Data())
	if err != nil || len(challenge) == 0 {
		return nil, nil
	}
	parsed, err := protocol.ParseCredentialRequestResponseBody(strings.NewReader(response))
	if err != nil {
		return nil, nil
	}
	user := ceremonyUser{u}
	_, sd, err := t.rp.BeginLogin(user)
	if err != nil {
		return nil, nil
	}
	sd.Challenge = base64.RawURLEncoding.EncodeToString(challenge)
	validated, err := t.rp.ValidateLogin(user, *sd, parsed)
	if err != nil {
		return nil, nil
	}
	u.ClearSession(TypeName, false)
	for _, c := range u.CredentialsByType(TypeName) {
		stored, err := decodeCredential(c.Data())
		if err != nil {
			continue
		}
		if bytes.Equal(stored.ID, validated.ID) {
			c.RecordUse()
			return c, nil
		}
	}
	return nil, nil
}

// sessionChallenge returns the ceremony challenge to use: the session's
// persisted one when present, otherwise the fresh one, which is then
// persisted.
func sessionChallenge(s *credential.Session, fresh protocol.URLEncodedBase64) (protocol.URLEncodedBase64, error) {
	if s.Data() != "" {
		stored, err := hex.DecodeString(s.Data())
		if err != nil {
			return nil, err
		}
		return stored, nil
	}
	s.SetData(hex.EncodeToString(fresh))
	return fresh, nil
}

// ceremonyUser adapts a user to the library's view of an account. The
// user handle and account name are the user id; authenticators display
// the display name.
type ceremonyUser struct {
	user *credential.User
}

func (u ceremonyUser) WebAuthnID() []byte {
	return []byte(u.user.ID().String())
}

func (u ceremonyUser) WebAuthnName() string {
	return u.user.ID().String()
}

func (u ceremonyUser) WebAuthnDisplayName() string {
	return u.user.DisplayName()
}

func (u ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	var out []webauthn.Credential
	for _, c := range u.user.CredentialsByType(TypeName) {
		stored, err := decodeCredential(c.Data())
		if err != nil {
			continue
		}
		out = append(out, *stored)
	}
	return out
}
