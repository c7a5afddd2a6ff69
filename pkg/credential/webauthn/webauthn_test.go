// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package webauthn

import (
	"encoding/json"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siggiio/CredentialServer/pkg/credential"
)

var testConfig = Config{
	RPDisplayName: "Example Corp",
	RPID:          "example.com",
	RPOrigins:     []string{"https://example.com"},
}

var testRP = virtualwebauthn.RelyingParty{
	Name:   testConfig.RPDisplayName,
	ID:     testConfig.RPID,
	Origin: testConfig.RPOrigins[0],
}

// publicKeyOptions unwraps the {"publicKey": ...} envelope the start
// operations return.
func publicKeyOptions(t *testing.T, payload string) string {
	t.Helper()
	var envelope struct {
		PublicKey json.RawMessage `json:"publicKey"`
	}
	require.NoError(t, json.Unmarshal([]byte(payload), &envelope))
	require.NotEmpty(t, envelope.PublicKey)
	return string(envelope.PublicKey)
}

func register(t *testing.T, typ *Type, u *credential.User,
	authenticator *virtualwebauthn.Authenticator, key *virtualwebauthn.Credential) *credential.Credential {
	t.Helper()

	payload, err := typ.StartRegistration(u)
	require.NoError(t, err)

	options, err := virtualwebauthn.ParseAttestationOptions(publicKeyOptions(t, payload))
	require.NoError(t, err)
	response := virtualwebauthn.CreateAttestationResponse(testRP, *authenticator, *key, *options)

	c, err := typ.FinishRegistration(u, response)
	require.NoError(t, err)
	require.NotNil(t, c)
	authenticator.AddCredential(*key)
	return c
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"valid", testConfig, nil},
		{"missing rp id", Config{RPDisplayName: "x", RPOrigins: []string{"https://x"}}, ErrMissingRPID},
		{"missing display name", Config{RPID: "x", RPOrigins: []string{"https://x"}}, ErrMissingRPDisplayName},
		{"missing origins", Config{RPID: "x", RPDisplayName: "x"}, ErrMissingRPOrigins},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestRegistrationAndLogin(t *testing.T) {
	typ, err := NewType(testConfig)
	require.NoError(t, err)

	u := credential.NewUser(uuid.New())
	authenticator := virtualwebauthn.NewAuthenticator()
	key := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	enrolled := register(t, typ, u, &authenticator, &key)
	assert.Equal(t, TypeName, enrolled.Type())
	assert.Zero(t, enrolled.UseCount(), "registration must not count as a use")

	payload, err := typ.StartLogin(u)
	require.NoError(t, err)
	options, err := virtualwebauthn.ParseAssertionOptions(publicKeyOptions(t, payload))
	require.NoError(t, err)
	response := virtualwebauthn.CreateAssertionResponse(testRP, authenticator, key, *options)

	c, err := typ.FinishLogin(u, response)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Same(t, enrolled, c)
	assert.Equal(t, int64(1), c.UseCount())
}

func TestStartReusesPendingChallenge(t *testing.T) {
	typ, err := NewType(testConfig)
	require.NoError(t, err)
	u := credential.NewUser(uuid.New())

	first, err := typ.StartRegistration(u)
	require.NoError(t, err)
	second, err := typ.StartRegistration(u)
	require.NoError(t, err)

	a, err := virtualwebauthn.ParseAttestationOptions(publicKeyOptions(t, first))
	require.NoError(t, err)
	b, err := virtualwebauthn.ParseAttestationOptions(publicKeyOptions(t, second))
	require.NoError(t, err)
	assert.Equal(t, a.Challenge, b.Challenge,
		"a fresh ceremony should keep its challenge so an earlier tab can still finish")
}

func TestFinishWithoutStartFails(t *testing.T) {
	typ, err := NewType(testConfig)
	require.NoError(t, err)
	u := credential.NewUser(uuid.New())

	c, err := typ.FinishRegistration(u, "{}")
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = typ.FinishLogin(u, "{}")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestAssertionCannotBeReplayed(t *testing.T) {
	typ, err := NewType(testConfig)
	require.NoError(t, err)

	u := credential.NewUser(uuid.New())
	authenticator := virtualwebauthn.NewAuthenticator()
	key := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	register(t, typ, u, &authenticator, &key)

	payload, err := typ.StartLogin(u)
	require.NoError(t, err)
	options, err := virtualwebauthn.ParseAssertionOptions(publicKeyOptions(t, payload))
	require.NoError(t, err)
	response := virtualwebauthn.CreateAssertionResponse(testRP, authenticator, key, *options)

	c, err := typ.FinishLogin(u, response)
	require.NoError(t, err)
	require.NotNil(t, c)

	// The ceremony is cleared on success, so replaying the assertion
	// finds no challenge.
	c, err = typ.FinishLogin(u, response)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestLoginWithWrongAuthenticatorFails(t *testing.T) {
	typ, err := NewType(testConfig)
	require.NoError(t, err)

	u := credential.NewUser(uuid.New())
	authenticator := virtualwebauthn.NewAuthenticator()
	key := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	register(t, typ, u, &authenticator, &key)

	// An authenticator holding a different key answers the challenge.
	imposter := virtualwebauthn.NewAuthenticator()
	wrongKey := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	imposter.AddCredential(wrongKey)

	payload, err := typ.StartLogin(u)
	require.NoError(t, err)
	options, err := virtualwebauthn.ParseAssertionOptions(publicKeyOptions(t, payload))
	require.NoError(t, err)
	response := virtualwebauthn.CreateAssertionResponse(testRP, imposter, wrongKey, *options)

	c, err := typ.FinishLogin(u, response)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestStartLoginRequiresCredential(t *testing.T) {
	typ, err := NewType(testConfig)
	require.NoError(t, err)
	u := credential.NewUser(uuid.New())

	_, err = typ.StartLogin(u)
	assert.Error(t, err)
}

func TestCredentialDataRoundTrip(t *testing.T) {
	typ, err := NewType(testConfig)
	require.NoError(t, err)

	u := credential.NewUser(uuid.New())
	authenticator := virtualwebauthn.NewAuthenticator()
	key := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	enrolled := register(t, typ, u, &authenticator, &key)

	stored, err := decodeCredential(enrolled.Data())
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.NotEmpty(t, stored.PublicKey)

	_, err = decodeCredential("not a credential")
	assert.Error(t, err)
	_, err = decodeCredential("zz/aa/bb/0")
	assert.Error(t, err)
	_, err = decodeCredential("aa/bb/cc/notanumber")
	assert.Error(t, err)
}
