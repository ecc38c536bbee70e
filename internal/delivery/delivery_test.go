package delivery

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vidgrab/vidgrab/internal/api"
	apperrors "github.com/vidgrab/vidgrab/internal/errors"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean name", "video.mp4", "video.mp4"},
		{"spaces", "my cool video.mp4", "my_cool_video.mp4"},
		{"path separators", "../../etc/passwd", ".._.._etc_passwd"},
		{"shell metacharacters", "a;rm -rf$(x).mp4", "a_rm_-rf__x_.mp4"},
		{"unicode full width", "ｖｉｄｅｏ.mp4", "video.mp4"},
		{"emoji stripped", "fun🎬clip.mp4", "fun_clip.mp4"},
		{"leading and trailing underscores trimmed", "///video///", "video"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename_Caps(t *testing.T) {
	long := strings.Repeat("a", 500)
	if got := SanitizeFilename(long); len(got) != maxFilenameLen {
		t.Errorf("len = %d, want %d", len(got), maxFilenameLen)
	}
}

func TestEnsureExtension(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		want        string
	}{
		{"adds mp4", "video", "video/mp4", "video.mp4"},
		{"adds mp3", "track", "audio/mpeg", "track.mp3"},
		{"keeps matching extension", "video.mp4", "video/mp4", "video.mp4"},
		{"keeps mismatched extension", "clip.webm", "video/mp4", "clip.webm"},
		{"unknown content type", "video", "application/octet-stream", "video"},
		{"content type with params", "video", "video/mp4; charset=binary", "video.mp4"},
		{"empty name", "", "video/mp4", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EnsureExtension(tt.filename, tt.contentType); got != tt.want {
				t.Errorf("EnsureExtension(%q, %q) = %q, want %q", tt.filename, tt.contentType, got, tt.want)
			}
		})
	}
}

// fakeFetcher serves a canned artifact per locator.
type fakeFetcher struct {
	artifacts map[string]*api.Artifact
	calls     int
}

func (f *fakeFetcher) FetchArtifact(ctx context.Context, locator string) (*api.Artifact, error) {
	f.calls++
	a, ok := f.artifacts[locator]
	if !ok {
		return nil, apperrors.BackendError("no such artifact")
	}
	return a, nil
}

func artifact(content, contentType, filename string) *api.Artifact {
	return &api.Artifact{
		Body:        io.NopCloser(strings.NewReader(content)),
		ContentType: contentType,
		Filename:    filename,
		Size:        int64(len(content)),
	}
}

func TestService_Deliver(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewLocalSink(dir)
	if err != nil {
		t.Fatalf("NewLocalSink() error = %v", err)
	}

	fetcher := &fakeFetcher{artifacts: map[string]*api.Artifact{
		"/downloads/my video.mp4": artifact("payload-bytes", "video/mp4", ""),
	}}
	svc := NewService(fetcher, sink)

	result, err := svc.Deliver(context.Background(), Descriptor{
		Filename: "my video.mp4",
		Locator:  "/downloads/my video.mp4",
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if result.Filename != "my_video.mp4" {
		t.Errorf("Filename = %q, want my_video.mp4", result.Filename)
	}
	if result.Size != int64(len("payload-bytes")) {
		t.Errorf("Size = %d, want %d", result.Size, len("payload-bytes"))
	}

	data, err := os.ReadFile(result.Location)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", result.Location, err)
	}
	if string(data) != "payload-bytes" {
		t.Errorf("stored content = %q", data)
	}
}

func TestService_DeliverInfersExtension(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewLocalSink(dir)
	if err != nil {
		t.Fatalf("NewLocalSink() error = %v", err)
	}

	fetcher := &fakeFetcher{artifacts: map[string]*api.Artifact{
		"track": artifact("audio-bytes", "audio/mpeg", ""),
	}}
	svc := NewService(fetcher, sink)

	result, err := svc.Deliver(context.Background(), Descriptor{Filename: "track", Locator: "track"})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if result.Filename != "track.mp3" {
		t.Errorf("Filename = %q, want track.mp3", result.Filename)
	}
}

func TestService_DeliverEmptyArtifact(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewLocalSink(dir)
	if err != nil {
		t.Fatalf("NewLocalSink() error = %v", err)
	}

	fetcher := &fakeFetcher{artifacts: map[string]*api.Artifact{
		"empty.mp4": artifact("", "video/mp4", ""),
	}}
	svc := NewService(fetcher, sink)

	_, err = svc.Deliver(context.Background(), Descriptor{Filename: "empty.mp4", Locator: "empty.mp4"})
	if !apperrors.HasCode(err, apperrors.CodeEmptyArtifact) {
		t.Fatalf("Deliver() error = %v, want EMPTY_ARTIFACT", err)
	}

	// Nothing lasting may remain on disk.
	if _, statErr := os.Stat(filepath.Join(dir, "empty.mp4")); !os.IsNotExist(statErr) {
		t.Errorf("empty artifact left a file behind")
	}
}

func TestService_DeliverMissingDescriptor(t *testing.T) {
	svc := NewService(&fakeFetcher{}, mustLocalSink(t))

	_, err := svc.Deliver(context.Background(), Descriptor{})
	if !apperrors.HasCode(err, apperrors.CodeDeliveryError) {
		t.Errorf("Deliver() error = %v, want DELIVERY_ERROR", err)
	}
}

func TestService_DeliverFallsBackToArtifactFilename(t *testing.T) {
	fetcher := &fakeFetcher{artifacts: map[string]*api.Artifact{
		"/downloads/x": artifact("bytes", "video/webm", "served name.webm"),
	}}
	svc := NewService(fetcher, mustLocalSink(t))

	result, err := svc.Deliver(context.Background(), Descriptor{Locator: "/downloads/x"})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if result.Filename != "served_name.webm" {
		t.Errorf("Filename = %q, want served_name.webm", result.Filename)
	}
}

func mustLocalSink(t *testing.T) *LocalSink {
	t.Helper()
	sink, err := NewLocalSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalSink() error = %v", err)
	}
	return sink
}
