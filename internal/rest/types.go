// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package rest

import (
	"encoding/json"

	"github.com/Siggiio/CredentialServer/pkg/credential"
)

// ClientsideCredential is the client-visible view of a credential.
// Mechanism data never leaves the server.
type ClientsideCredential struct {
	Credential string `json:"credential"`
	Name       string `json:"name,omitempty"`
	Type       string `json:"type"`
	UseCount   int64  `json:"useCount"`
	LastUse    int64  `json:"lastUse"`
}

func newClientsideCredential(c *credential.Credential) *ClientsideCredential {
	return &ClientsideCredential{
		Credential: c.ID().String(),
		Name:       c.Name(),
		Type:       c.Type(),
		UseCount:   c.UseCount(),
		LastUse:    c.LastUse(),
	}
}

// SuccessResponse acknowledges an operation with no payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// TypesResponse lists the credential types a user holds.
type TypesResponse struct {
	Success bool     `json:"success"`
	Types   []string `json:"types"`
}

// CredentialsResponse lists a user's credentials.
type CredentialsResponse struct {
	Success     bool                   `json:"success"`
	Credentials []ClientsideCredential `json:"credentials"`
}

// StartResponse carries the ceremony payload from a start operation.
// Data is raw JSON for mechanisms whose payload is structured and a
// JSON string otherwise.
type StartResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// FinishResponse reports the outcome of a finish operation. Credential
// is set only on success.
type FinishResponse struct {
	Success    bool                  `json:"success"`
	Credential *ClientsideCredential `json:"credential,omitempty"`
}

// MetaResponse carries user metadata variables.
type MetaResponse struct {
	Success bool              `json:"success"`
	Values  map[string]string `json:"values"`
}

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the error envelope for all failed requests.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
