// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package namespace isolates sets of users behind independently
// configured storage backends. A user name only has meaning inside its
// namespace.
package namespace

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Siggiio/CredentialServer/pkg/credential"
	"github.com/Siggiio/CredentialServer/pkg/credential/password"
	"github.com/Siggiio/CredentialServer/pkg/credential/totp"
	"github.com/Siggiio/CredentialServer/pkg/credential/webauthn"
	"github.com/Siggiio/CredentialServer/pkg/metrics"
	"github.com/Siggiio/CredentialServer/pkg/storage"
	"github.com/Siggiio/CredentialServer/pkg/storage/file"
	storagesql "github.com/Siggiio/CredentialServer/pkg/storage/sql"
)

// ErrUnknownNamespace indicates a request for a namespace that is not
// configured.
var ErrUnknownNamespace = errors.New("namespace: unknown namespace")

// lockStripes bounds the number of per-user mutexes. Users map onto
// stripes by id hash.
const lockStripes = 64

// StorageConfig selects and parameterizes a namespace's backend.
type StorageConfig struct {
	// Type is "file" or "sql".
	Type string `yaml:"type" mapstructure:"type"`

	// Path is the root directory for the file backend.
	Path string `yaml:"path" mapstructure:"path"`

	// DSN is the PostgreSQL connection string for the sql backend.
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// Config declares one namespace. A namespace without a webauthn
// section only offers the password and totp mechanisms.
type Config struct {
	Name     string           `yaml:"name" mapstructure:"name"`
	Storage  StorageConfig    `yaml:"storage" mapstructure:"storage"`
	WebAuthn *webauthn.Config `yaml:"webauthn" mapstructure:"webauthn"`
}

// Namespace is one isolated user population with its own storage,
// relying party, and mechanism set.
type Namespace struct {
	name        string
	backend     storage.Backend
	backendType string
	registry    *credential.Registry
	locks       [lockStripes]sync.Mutex
}

// New builds a namespace, opens its backend, and assembles its
// mechanism registry. WebAuthn is only registered when the namespace
// configures a relying party.
func New(ctx context.Context, cfg Config) (*Namespace, error) {
	var (
		backend storage.Backend
		err     error
	)
	switch cfg.Storage.Type {
	case "file":
		backend, err = file.New(cfg.Storage.Path)
	case "sql":
		backend, err = storagesql.New(ctx, cfg.Storage.DSN)
	default:
		err = fmt.Errorf("%w: %q", storage.ErrUnknownBackend, cfg.Storage.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("namespace %s: %w", cfg.Name, err)
	}

	registry := credential.NewRegistry()
	registry.Register(password.NewType())
	registry.Register(totp.NewType())
	if cfg.WebAuthn != nil {
		webauthnType, err := webauthn.NewType(*cfg.WebAuthn)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("namespace %s: %w", cfg.Name, err)
		}
		registry.Register(webauthnType)
	}

	return &Namespace{
		name:        cfg.Name,
		backend:     backend,
		backendType: cfg.Storage.Type,
		registry:    registry,
	}, nil
}

func (n *Namespace) Name() string { return n.name }

// Registry returns the mechanisms available in this namespace.
func (n *Namespace) Registry() *credential.Registry { return n.registry }

// UserID maps a caller-supplied user name to a user id. Names that are
// already UUIDs are used directly; anything else is hashed together
// with the namespace name into a name-based UUID, so the same name in
// two namespaces yields two users.
func (n *Namespace) UserID(name string) uuid.UUID {
	if id, err := uuid.Parse(name); err == nil {
		return id
	}
	sum := md5.Sum([]byte(n.name + ":" + name))
	sum[6] = (sum[6] & 0x0f) | 0x30 // version 3
	sum[8] = (sum[8] & 0x3f) | 0x80 // RFC 4122 variant
	id, _ := uuid.FromBytes(sum[:])
	return id
}

// WithUser loads a user, runs fn, and saves. Access to one user is
// serialized; the save happens even when fn fails, so partial ceremony
// state started before the failure is not lost.
func (n *Namespace) WithUser(ctx context.Context, id uuid.UUID, fn func(*credential.User) error) error {
	lock := n.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	user, err := n.backend.ReadUser(ctx, id)
	metrics.RecordStorageOperation("read", n.backendType, time.Since(start).Seconds())
	if err != nil {
		return err
	}

	fnErr := fn(user)

	start = time.Now()
	saveErr := n.backend.SaveUser(ctx, user)
	metrics.RecordStorageOperation("save", n.backendType, time.Since(start).Seconds())
	return errors.Join(fnErr, saveErr)
}

func (n *Namespace) lockFor(id uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(id[:])
	return &n.locks[h.Sum32()%lockStripes]
}

func (n *Namespace) Close() error {
	return n.backend.Close()
}

// Manager holds the configured namespaces. The set is fixed at
// startup.
type Manager struct {
	namespaces map[string]*Namespace
}

func NewManager(ctx context.Context, configs []Config) (*Manager, error) {
	m := &Manager{namespaces: make(map[string]*Namespace, len(configs))}
	for _, cfg := range configs {
		ns, err := New(ctx, cfg)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.namespaces[cfg.Name] = ns
	}
	return m, nil
}

// All returns the namespaces sorted by name.
func (m *Manager) All() []*Namespace {
	out := make([]*Namespace, 0, len(m.namespaces))
	for _, ns := range m.namespaces {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Get returns a namespace by name.
func (m *Manager) Get(name string) (*Namespace, error) {
	ns, ok := m.namespaces[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNamespace, name)
	}
	return ns, nil
}

func (m *Manager) Close() error {
	var errs []error
	for _, ns := range m.namespaces {
		errs = append(errs, ns.Close())
	}
	return errors.Join(errs...)
}
