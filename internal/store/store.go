// Package store is the persistent session store: a durable key-value mirror
// of client state. Each key holds one whole JSON record; writes replace the
// record atomically and the last writer wins. A record that no longer parses
// is discarded wholesale and reported as absent, never partially trusted.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vidgrab/vidgrab/internal/config"
)

// Key identifies one logical slot in the session store.
type Key string

const (
	KeyActiveJob   Key = "active_job"
	KeyHistory     Key = "history"
	KeyPreferences Key = "preferences"
	KeyPreview     Key = "preview"
)

// ErrNotFound is returned when a key has no record (including after a
// corrupt record was discarded).
var ErrNotFound = errors.New("record not found")

// Store is a durable key-value mirror of session state.
type Store interface {
	// Get unmarshals the record for key into v. Returns ErrNotFound when
	// the key is absent. A corrupt record is deleted and reported as
	// ErrNotFound; corruption of one key never affects the others.
	Get(ctx context.Context, key Key, v any) error

	// Set replaces the record for key with the JSON encoding of v.
	Set(ctx context.Context, key Key, v any) error

	// Delete removes the record for key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key Key) error

	// Clear removes every record.
	Clear(ctx context.Context) error

	Close() error
}

// Open creates the store backend selected by the configuration.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case "", "file":
		return NewFileStore(cfg.DataDir)
	case "redis":
		return NewRedisStore(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
