// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package credential

import "sort"

// Type is a credential mechanism: password, totp, webauthn. Start
// operations return an opaque payload for the client; finish operations
// consume the client's response. A nil credential from a finish with a
// nil error means the ceremony failed verification.
type Type interface {
	// Name is the wire discriminator for the mechanism.
	Name() string

	// StartRegistration begins enrolling a new credential and returns
	// the payload the client needs to continue, if any.
	StartRegistration(u *User) (string, error)

	// FinishRegistration completes enrollment. On success the new
	// credential is attached to the user and returned.
	FinishRegistration(u *User, response string) (*Credential, error)

	// StartLogin begins a login ceremony and returns the payload the
	// client needs to continue, if any.
	StartLogin(u *User) (string, error)

	// FinishLogin verifies the client's response. On success the
	// matched credential has its use recorded and is returned.
	FinishLogin(u *User, response string) (*Credential, error)
}

// Registry holds the credential mechanisms the server exposes. The set
// is fixed at startup.
type Registry struct {
	types map[string]Type
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

// Register adds a mechanism. Registering the same name twice replaces
// the earlier instance.
func (r *Registry) Register(t Type) {
	r.types[t.Name()] = t
}

// Get looks up a mechanism by its wire name.
func (r *Registry) Get(name string) (Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Names returns the registered mechanism names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.types))
	for name := range r.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
