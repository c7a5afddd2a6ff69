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
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Siggiio/CredentialServer/pkg/credential"
	"github.com/Siggiio/CredentialServer/pkg/logging"
	"github.com/Siggiio/CredentialServer/pkg/metrics"
	"github.com/Siggiio/CredentialServer/pkg/namespace"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 64 << 10

// HandlerContext carries the dependencies shared by all handlers.
type HandlerContext struct {
	manager *namespace.Manager
	logger  *logging.Logger
}

func NewHandlerContext(manager *namespace.Manager, logger *logging.Logger) *HandlerContext {
	return &HandlerContext{
		manager: manager,
		logger:  logger,
	}
}

// HealthHandler reports server liveness.
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, HealthResponse{Status: "ok"}, http.StatusOK)
}

// UserActionHandler serves every per-user operation. The URL names the
// namespace, the user, and the action; parameters arrive as a JSON
// body, a form body, or query parameters.
func (h *HandlerContext) UserActionHandler(w http.ResponseWriter, r *http.Request) {
	ns, err := h.manager.Get(chi.URLParam(r, "namespace"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	params, err := decodeParams(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	action := chi.URLParam(r, "action")
	userID := ns.UserID(chi.URLParam(r, "user"))

	var response any
	err = ns.WithUser(r.Context(), userID, func(u *credential.User) error {
		var dispatchErr error
		response, dispatchErr = h.dispatch(ns, u, action, params)
		return dispatchErr
	})
	if err != nil {
		h.logger.Debugf("%s %s/%s failed: %v", action, ns.Name(), userID, err)
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, response, http.StatusOK)
}

func (h *HandlerContext) dispatch(ns *namespace.Namespace, u *credential.User, action string, params *requestParams) (any, error) {
	switch action {
	case "types":
		return h.listTypes(u), nil
	case "credentials":
		return h.listCredentials(u), nil
	case "startregistration":
		return h.startCeremony(ns, u, params, true)
	case "startlogin":
		return h.startCeremony(ns, u, params, false)
	case "finishregistration":
		return h.finishRegistration(ns, u, params)
	case "finishlogin":
		return h.finishLogin(ns, u, params)
	case "rename":
		return h.renameCredential(u, params)
	case "delete":
		return h.deleteCredential(u, params)
	case "metaset":
		return h.metaSet(u, params)
	case "metaget":
		return h.metaGet(u, params)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// listTypes reports the distinct mechanisms the user holds a credential
// for, not the mechanisms the server offers.
func (h *HandlerContext) listTypes(u *credential.User) TypesResponse {
	seen := make(map[string]struct{})
	response := TypesResponse{Success: true, Types: []string{}}
	for _, c := range u.Credentials() {
		if _, ok := seen[c.Type()]; ok {
			continue
		}
		seen[c.Type()] = struct{}{}
		response.Types = append(response.Types, c.Type())
	}
	sort.Strings(response.Types)
	return response
}

func (h *HandlerContext) listCredentials(u *credential.User) CredentialsResponse {
	response := CredentialsResponse{
		Success:     true,
		Credentials: []ClientsideCredential{},
	}
	for _, c := range u.Credentials() {
		response.Credentials = append(response.Credentials, *newClientsideCredential(c))
	}
	return response
}

// mechanism resolves the requested type against the namespace's own
// registry, so a mechanism disabled there is unknown there.
func (h *HandlerContext) mechanism(ns *namespace.Namespace, params *requestParams) (credential.Type, error) {
	if params.Type == "" {
		return nil, ErrMissingType
	}
	typ, ok := ns.Registry().Get(params.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", credential.ErrUnknownType, params.Type)
	}
	return typ, nil
}

func (h *HandlerContext) startCeremony(ns *namespace.Namespace, u *credential.User, params *requestParams, registration bool) (any, error) {
	typ, err := h.mechanism(ns, params)
	if err != nil {
		return nil, err
	}
	var payload string
	if registration {
		payload, err = typ.StartRegistration(u)
	} else {
		if len(u.CredentialsByType(typ.Name())) == 0 {
			return nil, fmt.Errorf("%w: %q", credential.ErrNoCredentials, typ.Name())
		}
		payload, err = typ.StartLogin(u)
	}
	if err != nil {
		return nil, err
	}
	return StartResponse{Success: true, Data: encodePayload(payload)}, nil
}

func (h *HandlerContext) finishRegistration(ns *namespace.Namespace, u *credential.User, params *requestParams) (any, error) {
	if params.Type == "" {
		return nil, ErrMissingType
	}
	typ, ok := ns.Registry().Get(params.Type)
	if !ok {
		return FinishResponse{Success: false}, nil
	}
	c, err := typ.FinishRegistration(u, params.DataString())
	if err != nil {
		metrics.RecordCeremony(true, typ.Name(), ns.Name(), metrics.StatusError)
		return nil, err
	}
	if c == nil {
		metrics.RecordCeremony(true, typ.Name(), ns.Name(), metrics.StatusFailure)
		return FinishResponse{Success: false}, nil
	}
	if params.Name != "" {
		c.SetName(params.Name)
	}
	metrics.RecordCeremony(true, typ.Name(), ns.Name(), metrics.StatusSuccess)
	return FinishResponse{Success: true, Credential: newClientsideCredential(c)}, nil
}

func (h *HandlerContext) finishLogin(ns *namespace.Namespace, u *credential.User, params *requestParams) (any, error) {
	if params.Type == "" {
		return nil, ErrMissingType
	}
	typ, ok := ns.Registry().Get(params.Type)
	if !ok {
		return FinishResponse{Success: false}, nil
	}
	c, err := typ.FinishLogin(u, params.DataString())
	if err != nil {
		metrics.RecordCeremony(false, typ.Name(), ns.Name(), metrics.StatusError)
		return nil, err
	}
	if c == nil {
		metrics.RecordCeremony(false, typ.Name(), ns.Name(), metrics.StatusFailure)
		return FinishResponse{Success: false}, nil
	}
	metrics.RecordCeremony(false, typ.Name(), ns.Name(), metrics.StatusSuccess)
	return FinishResponse{Success: true, Credential: newClientsideCredential(c)}, nil
}

func (h *HandlerContext) findCredential(u *credential.User, params *requestParams) (*credential.Credential, error) {
	id, err := uuid.Parse(params.Credential)
	if err != nil {
		return nil, ErrBadCredential
	}
	c := u.CredentialByID(id)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", credential.ErrNotFound, id)
	}
	return c, nil
}

func (h *HandlerContext) renameCredential(u *credential.User, params *requestParams) (any, error) {
	c, err := h.findCredential(u, params)
	if err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, ErrMissingName
	}
	c.SetName(params.Name)
	return SuccessResponse{Success: true}, nil
}

func (h *HandlerContext) deleteCredential(u *credential.User, params *requestParams) (any, error) {
	c, err := h.findCredential(u, params)
	if err != nil {
		return nil, err
	}
	c.Delete()
	return SuccessResponse{Success: true}, nil
}

// metaSet treats the whole request body as variable assignments. A
// null value deletes the variable.
func (h *HandlerContext) metaSet(u *credential.User, params *requestParams) (any, error) {
	for key, raw := range params.fields {
		if string(raw) == "null" {
			u.SetVariable(key, "")
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("%w: variable %q is not a string", ErrMalformedBody, key)
		}
		u.SetVariable(key, value)
	}
	return SuccessResponse{Success: true}, nil
}

// metaGet returns the user's variables, restricted to the requested
// keys when a filter is given.
func (h *HandlerContext) metaGet(u *credential.User, params *requestParams) (any, error) {
	variables := u.Variables()
	values := make(map[string]string)
	if len(params.Keys) > 0 {
		for _, key := range params.Keys {
			if value, ok := variables[key]; ok {
				values[key] = value
			}
		}
	} else {
		for name, value := range variables {
			values[name] = value
		}
	}
	return MetaResponse{Success: true, Values: values}, nil
}

// requestParams is the union of parameters the user actions accept.
// fields keeps every top-level body field for the map-style actions.
type requestParams struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	Name       string          `json:"name"`
	Credential string          `json:"credential"`
	Keys       []string        `json:"keys"`

	fields map[string]json.RawMessage
}

// DataString returns the client's ceremony response as a string. JSON
// bodies may carry it as either a string or a structured object.
func (p *requestParams) DataString() string {
	if len(p.Data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Data, &s); err == nil {
		return s
	}
	return string(p.Data)
}

// decodeParams reads request parameters from a JSON body, a form body,
// or the query string.
func decodeParams(w http.ResponseWriter, r *http.Request) (*requestParams, error) {
	params := &requestParams{fields: make(map[string]json.RawMessage)}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return nil, ErrRequestTooBig
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		if err := json.Unmarshal(body, &params.fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		if err := json.Unmarshal(body, params); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		return params, nil
	}

	if err := r.ParseForm(); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, ErrRequestTooBig
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	params.Type = r.Form.Get("type")
	params.Name = r.Form.Get("name")
	params.Credential = r.Form.Get("credential")
	params.Keys = r.Form["keys"]
	if data := r.Form.Get("data"); data != "" {
		raw, _ := json.Marshal(data)
		params.Data = raw
	}
	// Only body fields become map-style parameters. Query parameters
	// such as ?pretty must not turn into user variables.
	for key := range r.PostForm {
		raw, _ := json.Marshal(r.PostForm.Get(key))
		params.fields[key] = raw
	}
	return params, nil
}

// encodePayload wraps a ceremony payload for the response: structured
// payloads are embedded as JSON, everything else as a JSON string.
func encodePayload(payload string) json.RawMessage {
	if payload == "" {
		return nil
	}
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	raw, _ := json.Marshal(payload)
	return raw
}
