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
	"errors"
	"net/http"

	"github.com/Siggiio/CredentialServer/pkg/credential"
	"github.com/Siggiio/CredentialServer/pkg/namespace"
	"github.com/Siggiio/CredentialServer/pkg/storage"
)

// Common request errors
var (
	ErrUnknownAction = errors.New("unknown action")
	ErrMissingType   = errors.New("missing type parameter")
	ErrMissingName   = errors.New("missing name parameter")
	ErrBadCredential = errors.New("missing or malformed credential parameter")
	ErrRequestTooBig = errors.New("request body too large")
	ErrMalformedBody = errors.New("malformed request body")
)

// mapErrorToStatusCode maps errors to HTTP status codes.
func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, namespace.ErrUnknownNamespace),
		errors.Is(err, credential.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, credential.ErrUnknownType),
		errors.Is(err, credential.ErrNoCredentials),
		errors.Is(err, ErrUnknownAction),
		errors.Is(err, ErrMissingType),
		errors.Is(err, ErrMissingName),
		errors.Is(err, ErrBadCredential),
		errors.Is(err, ErrMalformedBody):
		return http.StatusBadRequest
	case errors.Is(err, ErrRequestTooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrCorruptRecord):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the error envelope with the status code the error
// maps to.
func (h *HandlerContext) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeJSON(w, r, ErrorResponse{Message: err.Error()}, mapErrorToStatusCode(err))
}

// writeJSON writes a JSON response, honoring the ?pretty flag.
func (h *HandlerContext) writeJSON(w http.ResponseWriter, r *http.Request, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	encoder := json.NewEncoder(w)
	if r != nil && r.URL.Query().Has("pretty") {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(data); err != nil {
		h.logger.Errorf("Failed to encode JSON response: %v", err)
	}
}
