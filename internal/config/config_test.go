// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siggiio/CredentialServer/pkg/credential/webauthn"
	"github.com/Siggiio/CredentialServer/pkg/namespace"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 30
logging:
  debug: true
namespaces:
  - name: main
    storage:
      type: file
      path: /var/lib/credentialserver/main
    webauthn:
      display_name: Example Corp
      rp_id: example.com
      origins:
        - https://example.com
  - name: staging
    storage:
      type: sql
      dsn: postgres://localhost/credentials
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Logging.Debug)
	require.Len(t, cfg.Namespaces, 2)

	// The relying party belongs to its namespace, not the server.
	require.NotNil(t, cfg.Namespaces[0].WebAuthn)
	assert.Equal(t, "example.com", cfg.Namespaces[0].WebAuthn.RPID)
	assert.Nil(t, cfg.Namespaces[1].WebAuthn)
	assert.Equal(t, "sql", cfg.Namespaces[1].Storage.Type)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformed(t *testing.T) {
	_, err := Load(writeConfig(t, "{not yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	fileNS := namespace.Config{
		Name:    "main",
		Storage: namespace.StorageConfig{Type: "file", Path: "/tmp/x"},
	}
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"no namespaces", Config{}, ErrNoNamespaces},
		{
			"unnamed namespace",
			Config{Namespaces: []namespace.Config{{Storage: namespace.StorageConfig{Type: "file", Path: "/x"}}}},
			ErrMissingNamespace,
		},
		{
			"duplicate namespace",
			Config{Namespaces: []namespace.Config{fileNS, fileNS}},
			ErrDuplicateName,
		},
		{
			"file without path",
			Config{Namespaces: []namespace.Config{{Name: "a", Storage: namespace.StorageConfig{Type: "file"}}}},
			ErrIncompleteStorage,
		},
		{
			"sql without dsn",
			Config{Namespaces: []namespace.Config{{Name: "a", Storage: namespace.StorageConfig{Type: "sql"}}}},
			ErrIncompleteStorage,
		},
		{
			"unknown storage type",
			Config{Namespaces: []namespace.Config{{Name: "a", Storage: namespace.StorageConfig{Type: "tape"}}}},
			ErrIncompleteStorage,
		},
		{
			"partial webauthn",
			Config{Namespaces: []namespace.Config{{
				Name:     "main",
				Storage:  namespace.StorageConfig{Type: "file", Path: "/tmp/x"},
				WebAuthn: &webauthn.Config{RPID: "example.com"},
			}}},
			webauthn.ErrMissingRPDisplayName,
		},
		{
			"tls without keypair",
			Config{
				Namespaces: []namespace.Config{fileNS},
				TLS:        TLSConfig{Enabled: true},
			},
			ErrIncompleteTLS,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), tt.want)
		})
	}
}

func TestWebAuthnOptionalPerNamespace(t *testing.T) {
	cfg := Config{Namespaces: []namespace.Config{{
		Name:    "main",
		Storage: namespace.StorageConfig{Type: "file", Path: "/tmp/x"},
	}}}
	require.NoError(t, cfg.Validate())
	assert.Nil(t, cfg.Namespaces[0].WebAuthn)
}
