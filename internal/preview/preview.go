// Package preview fetches metadata for a media URL before the user commits
// to a download, caching the last result so retyping the same URL is free.
package preview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vidgrab/vidgrab/internal/api"
	apperrors "github.com/vidgrab/vidgrab/internal/errors"
	"github.com/vidgrab/vidgrab/internal/logger"
	"github.com/vidgrab/vidgrab/internal/platforms"
	"github.com/vidgrab/vidgrab/internal/store"
)

// cacheTTL bounds how long a cached preview stays trustworthy. Video
// metadata changes rarely; an hour keeps repeated lookups cheap without
// serving week-old titles.
const cacheTTL = time.Hour

// InfoSource fetches metadata from the backend.
type InfoSource interface {
	GetVideoInfo(ctx context.Context, mediaURL string) (*api.VideoInfo, error)
}

// cachedPreview is the persisted record under the preview key.
type cachedPreview struct {
	URL       string        `json:"url"`
	Info      api.VideoInfo `json:"info"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// Service resolves URL previews with a single-entry persistent cache.
type Service struct {
	mu       sync.Mutex
	source   InfoSource
	store    store.Store
	registry *platforms.Registry
	log      *logger.Logger
}

// NewService creates a preview service.
func NewService(source InfoSource, s store.Store) *Service {
	return &Service{
		source:   source,
		store:    s,
		registry: platforms.DefaultRegistry(),
		log:      logger.Default().WithComponent("preview"),
	}
}

// Fetch returns metadata for the URL, from cache when fresh. The URL is
// validated first so unsupported hosts fail without a network call.
func (s *Service) Fetch(ctx context.Context, rawURL string) (*api.VideoInfo, error) {
	if rawURL == "" {
		return nil, apperrors.EmptyURL()
	}

	result := s.registry.Validate(rawURL)
	if !result.Valid {
		if result.Platform == platforms.PlatformUnknown {
			host := platforms.Host(rawURL)
			if host == "" {
				host = rawURL
			}
			return nil, apperrors.UnsupportedHost(host)
		}
		return nil, apperrors.ValidationError(result.Error)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached := s.lookup(ctx, rawURL); cached != nil {
		return cached, nil
	}

	info, err := s.source.GetVideoInfo(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if info.Platform == "" {
		info.Platform = string(result.Platform)
	}

	record := cachedPreview{URL: rawURL, Info: *info, FetchedAt: time.Now()}
	if err := s.store.Set(ctx, store.KeyPreview, record); err != nil {
		s.log.Warn(ctx, "failed to cache preview", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return info, nil
}

// Invalidate drops the cached preview.
func (s *Service) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.Delete(ctx, store.KeyPreview)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// lookup returns the cached info when it matches the URL and is fresh.
func (s *Service) lookup(ctx context.Context, rawURL string) *api.VideoInfo {
	var record cachedPreview
	if err := s.store.Get(ctx, store.KeyPreview, &record); err != nil {
		return nil
	}
	if record.URL != rawURL || time.Since(record.FetchedAt) > cacheTTL {
		return nil
	}
	info := record.Info
	return &info
}
