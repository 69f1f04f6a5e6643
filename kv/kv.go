// Package kv is the persistent key-value layer records are filed in. Every
// backend stores opaque JSON values under string keys; interpretation of the
// values belongs to the preset package.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store is a flat key-value namespace shared by every page context.
// Get reports ok=false for an absent key rather than an error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

// Options selects and configures a backend.
type Options struct {
	Backend string
	Path    string // file, bolt, sqlite
	DSN     string // postgres
}

// Open returns the configured backend, ready for use.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendFile:
		return NewFile(opts.Path)
	case "", BackendBolt:
		return OpenBolt(opts.Path)
	case BackendSQLite:
		return OpenSQLite(ctx, opts.Path)
	case BackendPostgres:
		return OpenPostgres(ctx, opts.DSN)
	case BackendMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}
