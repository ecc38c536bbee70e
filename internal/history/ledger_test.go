package history

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/vidgrab/vidgrab/internal/api"
	"github.com/vidgrab/vidgrab/internal/store"
)

// fakeBackend is a scriptable server-side history.
type fakeBackend struct {
	entries []api.HistoryEntry
	err     error
}

func (f *fakeBackend) GetHistory(ctx context.Context) ([]api.HistoryEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func (f *fakeBackend) DeleteHistoryEntry(ctx context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	kept := f.entries[:0]
	for _, e := range f.entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	f.entries = kept
	return nil
}

func (f *fakeBackend) ClearHistory(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.entries = nil
	return nil
}

func newTestLedger(t *testing.T, backend Backend) *Ledger {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return NewLedger(s, backend, nil)
}

func entry(i int) api.HistoryEntry {
	return api.HistoryEntry{
		ID:        fmt.Sprintf("id-%d", i),
		Title:     fmt.Sprintf("Video %d", i),
		URL:       fmt.Sprintf("https://youtu.be/video%d", i),
		Quality:   "720p",
		Format:    "mp4",
		Type:      "video",
		Timestamp: int64(1700000000000 + i),
	}
}

func TestLedger_RecordNewestFirst(t *testing.T) {
	l := newTestLedger(t, &fakeBackend{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Record(ctx, entry(i)); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got := l.All(ctx)
	if len(got) != 3 {
		t.Fatalf("All() returned %d entries, want 3", len(got))
	}
	for i, want := range []string{"id-2", "id-1", "id-0"} {
		if got[i].ID != want {
			t.Errorf("All()[%d].ID = %q, want %q", i, got[i].ID, want)
		}
	}
}

func TestLedger_RecordCapsAtMax(t *testing.T) {
	l := newTestLedger(t, &fakeBackend{})
	ctx := context.Background()

	for i := 0; i <= MaxEntries; i++ {
		if err := l.Record(ctx, entry(i)); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got := l.All(ctx)
	if len(got) != MaxEntries {
		t.Fatalf("All() returned %d entries, want %d", len(got), MaxEntries)
	}
	// The newest survives, the oldest was evicted.
	if got[0].ID != fmt.Sprintf("id-%d", MaxEntries) {
		t.Errorf("newest entry = %q", got[0].ID)
	}
	for _, e := range got {
		if e.ID == "id-0" {
			t.Errorf("oldest entry id-0 still present after cap")
		}
	}
}

func TestLedger_Recent(t *testing.T) {
	l := newTestLedger(t, &fakeBackend{})
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if err := l.Record(ctx, entry(i)); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got := l.Recent(ctx)
	if len(got) != RecentCount {
		t.Fatalf("Recent() returned %d entries, want %d", len(got), RecentCount)
	}
	if got[0].ID != "id-7" {
		t.Errorf("Recent()[0].ID = %q, want id-7", got[0].ID)
	}
}

func TestLedger_ReconcileServerWins(t *testing.T) {
	backend := &fakeBackend{entries: []api.HistoryEntry{entry(100), entry(101)}}
	l := newTestLedger(t, backend)
	ctx := context.Background()

	// Local cache has drifted.
	if err := l.Record(ctx, entry(0)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got := l.Reconcile(ctx)
	if len(got) != 2 {
		t.Fatalf("Reconcile() returned %d entries, want 2", len(got))
	}
	if got[0].ID != "id-100" || got[1].ID != "id-101" {
		t.Errorf("Reconcile() = %q, %q", got[0].ID, got[1].ID)
	}

	// The server copy replaced the local cache.
	all := l.All(ctx)
	if len(all) != 2 || all[0].ID != "id-100" {
		t.Errorf("All() after reconcile = %+v", all)
	}
}

func TestLedger_ReconcileFallsBackToCache(t *testing.T) {
	backend := &fakeBackend{err: errors.New("backend rejected request")}
	l := newTestLedger(t, backend)
	ctx := context.Background()

	if err := l.Record(ctx, entry(0)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got := l.Reconcile(ctx)
	if len(got) != 1 || got[0].ID != "id-0" {
		t.Errorf("Reconcile() fallback = %+v, want the cached entry", got)
	}
}

func TestLedger_ReconcileEmptyServer(t *testing.T) {
	l := newTestLedger(t, &fakeBackend{})
	ctx := context.Background()

	if err := l.Record(ctx, entry(0)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	// An empty server list clears the local cache: server wins even when it
	// means losing entries.
	got := l.Reconcile(ctx)
	if len(got) != 0 {
		t.Errorf("Reconcile() = %+v, want empty", got)
	}
	if all := l.All(ctx); len(all) != 0 {
		t.Errorf("All() after empty reconcile = %+v, want empty", all)
	}
}

func TestLedger_DeleteServerFirst(t *testing.T) {
	backend := &fakeBackend{entries: []api.HistoryEntry{entry(0), entry(1)}}
	l := newTestLedger(t, backend)
	ctx := context.Background()

	l.Record(ctx, entry(0))
	l.Record(ctx, entry(1))

	if err := l.Delete(ctx, "id-0"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	all := l.All(ctx)
	if len(all) != 1 || all[0].ID != "id-1" {
		t.Errorf("All() after delete = %+v", all)
	}
}

func TestLedger_DeleteKeepsCacheOnServerFailure(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	l := newTestLedger(t, backend)
	ctx := context.Background()

	l.Record(ctx, entry(0))

	if err := l.Delete(ctx, "id-0"); err == nil {
		t.Fatal("Delete() succeeded, want server error")
	}

	// The local entry survives a failed server delete.
	if all := l.All(ctx); len(all) != 1 {
		t.Errorf("All() after failed delete = %+v, want the entry kept", all)
	}
}

func TestLedger_Clear(t *testing.T) {
	backend := &fakeBackend{entries: []api.HistoryEntry{entry(0)}}
	l := newTestLedger(t, backend)
	ctx := context.Background()

	l.Record(ctx, entry(0))

	if err := l.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if all := l.All(ctx); len(all) != 0 {
		t.Errorf("All() after clear = %+v, want empty", all)
	}
}
