package session

import (
	"context"

	"github.com/vidgrab/vidgrab/internal/store"
)

// Preferences are the user's defaults and behavioral toggles. They are
// owned exclusively by this client and read at submission time to seed a
// new job's options.
type Preferences struct {
	AutoFetchInfo          bool   `json:"auto_fetch_info"`
	DefaultType            string `json:"default_type"`
	DefaultQuality         string `json:"default_quality"`
	DefaultFormat          string `json:"default_format"`
	DownloadLocation       string `json:"download_location"`
	NotificationsEnabled   bool   `json:"notifications_enabled"`
	AutoClearHistory       bool   `json:"auto_clear_history"`
	AutoClearDays          int    `json:"auto_clear_days"`
	MaxConcurrentDownloads int    `json:"max_concurrent_downloads"`
}

// DefaultPreferences returns the out-of-box defaults.
func DefaultPreferences() Preferences {
	return Preferences{
		AutoFetchInfo:          true,
		DefaultType:            "video",
		DefaultQuality:         "720p",
		DefaultFormat:          "mp4",
		DownloadLocation:       "Downloads",
		NotificationsEnabled:   true,
		AutoClearHistory:       false,
		AutoClearDays:          30,
		MaxConcurrentDownloads: 3,
	}
}

// LoadPreferences reads the persisted preferences, falling back to defaults
// when the record is absent or was discarded as corrupt.
func LoadPreferences(ctx context.Context, s store.Store) Preferences {
	prefs := DefaultPreferences()
	if err := s.Get(ctx, store.KeyPreferences, &prefs); err != nil {
		return DefaultPreferences()
	}
	if prefs.AutoClearDays <= 0 {
		prefs.AutoClearDays = 30
	}
	if prefs.MaxConcurrentDownloads <= 0 {
		prefs.MaxConcurrentDownloads = 3
	}
	return prefs
}

// SavePreferences persists the preferences as one whole record.
func SavePreferences(ctx context.Context, s store.Store, prefs Preferences) error {
	return s.Set(ctx, store.KeyPreferences, prefs)
}

// seed fills empty option fields from the preferences.
func (p Preferences) seed(opts Options) Options {
	if opts.MediaType == "" {
		opts.MediaType = p.DefaultType
	}
	if opts.Quality == "" {
		opts.Quality = p.DefaultQuality
	}
	if opts.Format == "" {
		opts.Format = p.DefaultFormat
	}
	return opts
}
