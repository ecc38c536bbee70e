// Package history is the ledger of finished jobs: a capped, locally cached
// list reconciled opportunistically with the server's authoritative copy.
package history

import (
	"context"
	"errors"
	"sync"

	"github.com/vidgrab/vidgrab/internal/api"
	apperrors "github.com/vidgrab/vidgrab/internal/errors"
	"github.com/vidgrab/vidgrab/internal/logger"
	"github.com/vidgrab/vidgrab/internal/store"
)

const (
	// MaxEntries caps the retained ledger.
	MaxEntries = 50

	// RecentCount is the size of the display projection.
	RecentCount = 5
)

// Backend is the server-side history surface.
type Backend interface {
	GetHistory(ctx context.Context) ([]api.HistoryEntry, error)
	DeleteHistoryEntry(ctx context.Context, id string) error
	ClearHistory(ctx context.Context) error
}

// Ledger holds the local history cache and talks to the server copy.
type Ledger struct {
	mu      sync.Mutex
	store   store.Store
	backend Backend
	log     *logger.Logger
}

// NewLedger creates a ledger backed by the session store and the backend API.
func NewLedger(s store.Store, backend Backend, log *logger.Logger) *Ledger {
	if log == nil {
		log = logger.Default().WithComponent("history")
	}
	return &Ledger{store: s, backend: backend, log: log}
}

// Record prepends entry, caps the ledger at MaxEntries, and persists the
// whole list.
func (l *Ledger) Record(ctx context.Context, entry api.HistoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.load(ctx)
	entries = append([]api.HistoryEntry{entry}, entries...)
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	return l.persist(ctx, entries)
}

// All returns the locally cached ledger, newest first.
func (l *Ledger) All(ctx context.Context) []api.HistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

// Recent returns the display projection: the newest RecentCount entries.
func (l *Ledger) Recent(ctx context.Context) []api.HistoryEntry {
	entries := l.All(ctx)
	if len(entries) > RecentCount {
		entries = entries[:RecentCount]
	}
	return entries
}

// Reconcile fetches the server's list and replaces the local cache with it
// (server wins). On any failure it falls back to the cached list; it always
// yields some list, possibly empty.
func (l *Ledger) Reconcile(ctx context.Context) []api.HistoryEntry {
	serverEntries, err := apperrors.RetryWithResult(ctx, apperrors.ReconcileRetryConfig(),
		func(ctx context.Context) ([]api.HistoryEntry, error) {
			return l.backend.GetHistory(ctx)
		})

	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		l.log.Warn(ctx, "history reconcile failed, using local cache", map[string]interface{}{
			"error": err.Error(),
		})
		return l.load(ctx)
	}

	if serverEntries == nil {
		serverEntries = []api.HistoryEntry{}
	}
	if len(serverEntries) > MaxEntries {
		serverEntries = serverEntries[:MaxEntries]
	}

	if err := l.persist(ctx, serverEntries); err != nil {
		l.log.Warn(ctx, "failed to cache reconciled history", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return serverEntries
}

// Delete removes one entry server-side first; the local cache is only
// updated once the server confirms, so the two never drift.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	if err := l.backend.DeleteHistoryEntry(ctx, id); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.load(ctx)
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	return l.persist(ctx, kept)
}

// Clear removes all history server-side first, then locally.
func (l *Ledger) Clear(ctx context.Context) error {
	if err := l.backend.ClearHistory(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Delete(ctx, store.KeyHistory)
}

// load reads the cached list; an absent or corrupt record is an empty list.
func (l *Ledger) load(ctx context.Context) []api.HistoryEntry {
	var entries []api.HistoryEntry
	if err := l.store.Get(ctx, store.KeyHistory, &entries); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.log.Warn(ctx, "failed to read history cache", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return []api.HistoryEntry{}
	}
	return entries
}

func (l *Ledger) persist(ctx context.Context, entries []api.HistoryEntry) error {
	return l.store.Set(ctx, store.KeyHistory, entries)
}
