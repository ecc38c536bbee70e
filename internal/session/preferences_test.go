package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vidgrab/vidgrab/internal/store"
)

func newPrefsStore(t *testing.T) (store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return s, dir
}

func TestLoadPreferences_Defaults(t *testing.T) {
	s, _ := newPrefsStore(t)

	prefs := LoadPreferences(context.Background(), s)
	want := DefaultPreferences()
	if prefs != want {
		t.Errorf("LoadPreferences() = %+v, want defaults %+v", prefs, want)
	}
}

func TestPreferences_RoundTrip(t *testing.T) {
	s, _ := newPrefsStore(t)
	ctx := context.Background()

	prefs := DefaultPreferences()
	prefs.DefaultQuality = "1080p"
	prefs.DefaultType = "audio"
	prefs.NotificationsEnabled = false

	if err := SavePreferences(ctx, s, prefs); err != nil {
		t.Fatalf("SavePreferences() error = %v", err)
	}

	got := LoadPreferences(ctx, s)
	if got != prefs {
		t.Errorf("LoadPreferences() = %+v, want %+v", got, prefs)
	}
}

func TestLoadPreferences_CorruptRecordFallsBack(t *testing.T) {
	s, dir := newPrefsStore(t)
	ctx := context.Background()

	path := filepath.Join(dir, string(store.KeyPreferences)+".json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got := LoadPreferences(ctx, s)
	if got != DefaultPreferences() {
		t.Errorf("LoadPreferences() after corruption = %+v, want defaults", got)
	}

	// The key is writable again after the discard.
	if err := SavePreferences(ctx, s, got); err != nil {
		t.Errorf("SavePreferences() after discard error = %v", err)
	}
}

func TestPreferences_Seed(t *testing.T) {
	prefs := DefaultPreferences()

	tests := []struct {
		name string
		in   Options
		want Options
	}{
		{
			name: "all empty takes defaults",
			in:   Options{},
			want: Options{MediaType: "video", Quality: "720p", Format: "mp4"},
		},
		{
			name: "explicit fields win",
			in:   Options{MediaType: "audio", Quality: "1080p", Format: "m4a"},
			want: Options{MediaType: "audio", Quality: "1080p", Format: "m4a"},
		},
		{
			name: "partial fill",
			in:   Options{Quality: "480p"},
			want: Options{MediaType: "video", Quality: "480p", Format: "mp4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := prefs.seed(tt.in); got != tt.want {
				t.Errorf("seed(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestJobStatus_Classification(t *testing.T) {
	active := []JobStatus{StatusInitializing, StatusDownloading, StatusProcessing}
	for _, s := range active {
		if !s.IsActive() || s.IsTerminal() {
			t.Errorf("%s: IsActive=%v IsTerminal=%v, want active", s, s.IsActive(), s.IsTerminal())
		}
	}

	terminal := []JobStatus{StatusCompleted, StatusCancelled, StatusError}
	for _, s := range terminal {
		if s.IsActive() || !s.IsTerminal() {
			t.Errorf("%s: IsActive=%v IsTerminal=%v, want terminal", s, s.IsActive(), s.IsTerminal())
		}
	}

	if StatusIdle.IsActive() || StatusIdle.IsTerminal() {
		t.Errorf("idle must be neither active nor terminal")
	}
}
