// Package delivery retrieves the artifact a completed job produced and
// hands it to the user's environment.
package delivery

import (
	"context"
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/vidgrab/vidgrab/internal/api"
	apperrors "github.com/vidgrab/vidgrab/internal/errors"
)

const maxFilenameLen = 200

// extByContentType mirrors the backend's media-type table.
var extByContentType = map[string]string{
	"video/mp4":        ".mp4",
	"audio/mpeg":       ".mp3",
	"audio/mp4":        ".m4a",
	"video/webm":       ".webm",
	"video/x-matroska": ".mkv",
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
}

// Descriptor identifies a deliverable artifact, as supplied by a completed
// event.
type Descriptor struct {
	Filename string
	Locator  string
}

// Result describes a stored artifact.
type Result struct {
	Filename string
	Location string
	Size     int64
}

// Fetcher retrieves an artifact from the backend.
type Fetcher interface {
	FetchArtifact(ctx context.Context, locator string) (*api.Artifact, error)
}

// Service retrieves artifacts and stores them through a sink.
type Service struct {
	fetcher Fetcher
	sink    Sink
}

// NewService creates a delivery service.
func NewService(fetcher Fetcher, sink Sink) *Service {
	return &Service{fetcher: fetcher, sink: sink}
}

// Deliver retrieves the artifact named by desc and stores it. An empty
// payload fails with a delivery error and stores nothing lasting.
func (s *Service) Deliver(ctx context.Context, desc Descriptor) (*Result, error) {
	locator := desc.Locator
	if locator == "" {
		locator = desc.Filename
	}
	if locator == "" {
		return nil, apperrors.DeliveryError("completed event carried no delivery descriptor")
	}

	artifact, err := apperrors.RetryWithResult(ctx, apperrors.DeliveryRetryConfig(),
		func(ctx context.Context) (*api.Artifact, error) {
			return s.fetcher.FetchArtifact(ctx, locator)
		})
	if err != nil {
		return nil, err
	}
	defer artifact.Body.Close()

	filename := desc.Filename
	if filename == "" {
		filename = artifact.Filename
	}
	filename = SanitizeFilename(filename)
	filename = EnsureExtension(filename, artifact.ContentType)
	if filename == "" || filename == "." {
		filename = "download"
	}

	location, size, err := s.sink.Save(ctx, filename, artifact.ContentType, artifact.Body)
	if err != nil {
		return nil, apperrors.DeliveryError("failed to store artifact").WithCause(err)
	}
	if size == 0 {
		return nil, apperrors.EmptyArtifact(filename)
	}

	return &Result{
		Filename: filename,
		Location: location,
		Size:     size,
	}, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFilename normalizes the name (NFKC, so full-width and composed
// forms survive as their ASCII-compatible equivalents where one exists) and
// replaces everything outside [A-Za-z0-9_.-] with underscores.
func SanitizeFilename(name string) string {
	name = norm.NFKC.String(name)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if len(name) > maxFilenameLen {
		name = name[:maxFilenameLen]
	}
	return name
}

// EnsureExtension appends an extension inferred from the content type when
// the name has none. An existing extension matching the content type is
// never overwritten.
func EnsureExtension(name, contentType string) string {
	if name == "" {
		return name
	}

	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	want := extByContentType[mediaType]
	if want == "" {
		return name
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == want {
		return name
	}
	if ext == "" {
		return name + want
	}

	// A different extension is kept as-is; the declared content type may be
	// the generic fallback rather than the truth.
	return name
}
