// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siggiio/CredentialServer/pkg/credential/totp"
	"github.com/Siggiio/CredentialServer/pkg/credential/webauthn"
	"github.com/Siggiio/CredentialServer/pkg/namespace"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	relyingParty := &webauthn.Config{
		RPDisplayName: "Example",
		RPID:          "example.com",
		RPOrigins:     []string{"https://example.com"},
	}
	manager, err := namespace.NewManager(context.Background(), []namespace.Config{
		{
			Name:     "main",
			Storage:  namespace.StorageConfig{Type: "file", Path: t.TempDir()},
			WebAuthn: relyingParty,
		},
		{
			Name:    "plain",
			Storage: namespace.StorageConfig{Type: "file", Path: t.TempDir()},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	server, err := NewServer(&Config{Namespaces: manager})
	require.NoError(t, err)
	return server
}

func doJSON(t *testing.T, s *Server, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	return rec, decoded
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTypes(t *testing.T) {
	s := newTestServer(t)
	rec, body := doJSON(t, s, "/users/main/alice/types", map[string]any{})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Empty(t, body["types"])

	_, body = doJSON(t, s, "/users/main/alice/finishregistration",
		map[string]any{"type": "password", "data": "hunter2"})
	require.Equal(t, true, body["success"])

	_, body = doJSON(t, s, "/users/main/alice/types", map[string]any{})
	assert.Equal(t, []any{"password"}, body["types"])
}

func TestPasswordLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec, body := doJSON(t, s, "/users/main/alice/finishregistration",
		map[string]any{"type": "password", "data": "hunter2", "name": "main password"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])
	enrolled := body["credential"].(map[string]any)
	assert.Equal(t, "password", enrolled["type"])
	assert.Equal(t, "main password", enrolled["name"])

	// Wrong password fails without leaking anything else.
	rec, body = doJSON(t, s, "/users/main/alice/finishlogin",
		map[string]any{"type": "password", "data": "wrong"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Nil(t, body["credential"])

	rec, body = doJSON(t, s, "/users/main/alice/finishlogin",
		map[string]any{"type": "password", "data": "hunter2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	used := body["credential"].(map[string]any)
	assert.Equal(t, enrolled["credential"], used["credential"])
	assert.Equal(t, float64(1), used["useCount"])
}

func TestFormEncodedLogin(t *testing.T) {
	s := newTestServer(t)
	_, body := doJSON(t, s, "/users/main/alice/finishregistration",
		map[string]any{"type": "password", "data": "hunter2"})
	require.Equal(t, true, body["success"])

	form := url.Values{"type": {"password"}, "data": {"hunter2"}}
	req := httptest.NewRequest(http.MethodPost, "/users/main/alice/finishlogin",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, true, decoded["success"])
}

func TestTotpLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec, body := doJSON(t, s, "/users/main/alice/startregistration",
		map[string]any{"type": "totp"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])
	secret, err := totp.DecodeSecret(body["data"].(string))
	require.NoError(t, err)

	step := time.Now().UnixMilli() / 30_000
	rec, body = doJSON(t, s, "/users/main/alice/finishregistration",
		map[string]any{"type": "totp", "data": totp.CodeForStep(secret, step), "name": "phone"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"], "%v", body)
	enrolled := body["credential"].(map[string]any)
	assert.Equal(t, float64(1), enrolled["useCount"])

	// Enrollment consumed the code's step, so it cannot log in.
	rec, body = doJSON(t, s, "/users/main/alice/finishlogin",
		map[string]any{"type": "totp", "data": totp.CodeForStep(secret, step)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestCredentialsRenameDelete(t *testing.T) {
	s := newTestServer(t)
	_, body := doJSON(t, s, "/users/main/alice/finishregistration",
		map[string]any{"type": "password", "data": "hunter2"})
	require.Equal(t, true, body["success"])
	id := body["credential"].(map[string]any)["credential"].(string)

	_, body = doJSON(t, s, "/users/main/alice/rename",
		map[string]any{"credential": id, "name": "renamed"})
	assert.Equal(t, true, body["success"])

	_, body = doJSON(t, s, "/users/main/alice/credentials", map[string]any{})
	list := body["credentials"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "renamed", list[0].(map[string]any)["name"])

	_, body = doJSON(t, s, "/users/main/alice/delete",
		map[string]any{"credential": id})
	assert.Equal(t, true, body["success"])

	_, body = doJSON(t, s, "/users/main/alice/credentials", map[string]any{})
	assert.Empty(t, body["credentials"])
}

func TestMetaVariables(t *testing.T) {
	s := newTestServer(t)

	_, body := doJSON(t, s, "/users/main/alice/metaset",
		map[string]any{"displayName": "Alice", "locale": "is"})
	assert.Equal(t, true, body["success"])

	_, body = doJSON(t, s, "/users/main/alice/metaget", map[string]any{})
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"displayName": "Alice", "locale": "is"}, body["values"])

	// A keys filter restricts the result; unknown keys are absent.
	_, body = doJSON(t, s, "/users/main/alice/metaget",
		map[string]any{"keys": []string{"locale", "missing"}})
	assert.Equal(t, map[string]any{"locale": "is"}, body["values"])

	// Null deletes.
	_, body = doJSON(t, s, "/users/main/alice/metaset",
		map[string]any{"locale": nil})
	assert.Equal(t, true, body["success"])

	_, body = doJSON(t, s, "/users/main/alice/metaget", map[string]any{})
	assert.Equal(t, map[string]any{"displayName": "Alice"}, body["values"])
}

func TestFormMetaSetIgnoresQueryParams(t *testing.T) {
	s := newTestServer(t)

	form := url.Values{"displayName": {"Alice"}}
	req := httptest.NewRequest(http.MethodPost, "/users/main/alice/metaset?pretty",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, body := doJSON(t, s, "/users/main/alice/metaget", map[string]any{})
	assert.Equal(t, map[string]any{"displayName": "Alice"}, body["values"])
}

func TestUsersAreNamespaced(t *testing.T) {
	s := newTestServer(t)
	_, body := doJSON(t, s, "/users/main/alice/metaset",
		map[string]any{"k": "v"})
	require.Equal(t, true, body["success"])

	rec, _ := doJSON(t, s, "/users/other/alice/metaget", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartLoginWithoutCredential(t *testing.T) {
	s := newTestServer(t)
	rec, body := doJSON(t, s, "/users/main/alice/startlogin",
		map[string]any{"type": "webauthn"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestWebauthnStartRegistration(t *testing.T) {
	s := newTestServer(t)
	rec, body := doJSON(t, s, "/users/main/alice/startregistration",
		map[string]any{"type": "webauthn"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])

	options := body["data"].(map[string]any)["publicKey"].(map[string]any)
	assert.NotEmpty(t, options["challenge"])
	rp := options["rp"].(map[string]any)
	assert.Equal(t, "example.com", rp["id"])
}

func TestWebauthnScopedToNamespace(t *testing.T) {
	s := newTestServer(t)

	// Only the "main" namespace configures a relying party. Elsewhere
	// the mechanism does not exist.
	rec, body := doJSON(t, s, "/users/plain/alice/startregistration",
		map[string]any{"type": "webauthn"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, body = doJSON(t, s, "/users/plain/alice/finishregistration",
		map[string]any{"type": "webauthn", "data": "whatever"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])

	// Password still works there.
	_, body = doJSON(t, s, "/users/plain/alice/finishregistration",
		map[string]any{"type": "password", "data": "hunter2"})
	assert.Equal(t, true, body["success"])
}

func TestErrorCases(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name string
		path string
		body map[string]any
		code int
	}{
		{"unknown namespace", "/users/nope/alice/types", map[string]any{}, http.StatusNotFound},
		{"unknown action", "/users/main/alice/frobnicate", map[string]any{}, http.StatusBadRequest},
		{"unknown type", "/users/main/alice/startregistration", map[string]any{"type": "retina"}, http.StatusBadRequest},
		{"missing type", "/users/main/alice/startregistration", map[string]any{}, http.StatusBadRequest},
		{"bad credential id", "/users/main/alice/rename", map[string]any{"credential": "xyz", "name": "n"}, http.StatusBadRequest},
		{"unknown credential", "/users/main/alice/delete", map[string]any{"credential": "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := doJSON(t, s, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestFinishWithUnknownType(t *testing.T) {
	s := newTestServer(t)
	rec, body := doJSON(t, s, "/users/main/alice/finishlogin",
		map[string]any{"type": "retina", "data": "whatever"})

	// An unknown type on finish is a plain verification failure.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestWebRootServing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>hi</html>"), 0o644))

	s := newTestServer(t)
	s.webRoot = dir
	handler := s.setupRouter()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hi")

	// API routes still win over static files.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestBodySizeLimit(t *testing.T) {
	s := newTestServer(t)
	huge := fmt.Sprintf(`{"type":"password","data":%q}`, strings.Repeat("a", maxBodySize+1))
	req := httptest.NewRequest(http.MethodPost, "/users/main/alice/finishlogin",
		strings.NewReader(huge))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPrettyFlag(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/users/main/alice/types?pretty", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\n  ")
}
