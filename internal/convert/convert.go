// Package convert drives the upload-and-transcode workflow: push a local
// file to the backend, ask for a target format, then pull the converted
// artifact back through the delivery step.
package convert

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vidgrab/vidgrab/internal/api"
	"github.com/vidgrab/vidgrab/internal/delivery"
	apperrors "github.com/vidgrab/vidgrab/internal/errors"
	"github.com/vidgrab/vidgrab/internal/logger"
	"github.com/vidgrab/vidgrab/internal/platforms"
)

// supportedFormats is what the backend's transcoder accepts as a target.
var supportedFormats = map[string]bool{
	"mp4":  true,
	"webm": true,
	"mkv":  true,
	"avi":  true,
	"mov":  true,
	"mp3":  true,
	"m4a":  true,
	"wav":  true,
}

// Backend is the slice of the API client this workflow needs.
type Backend interface {
	UploadVideo(ctx context.Context, filename string, content io.Reader) (*api.UploadedVideo, error)
	GetUploadedVideos(ctx context.Context) ([]api.UploadedVideo, error)
	DeleteUploadedVideo(ctx context.Context, id string) error
	ConvertVideo(ctx context.Context, req *api.ConvertRequest) (string, error)
}

// Deliverer retrieves the converted artifact.
type Deliverer interface {
	Deliver(ctx context.Context, desc delivery.Descriptor) (*delivery.Result, error)
}

// Request describes one conversion.
type Request struct {
	Path         string // local file to upload
	OutputFormat string
	Quality      string // optional quality label, e.g. "720p"
}

// Service runs conversions end to end.
type Service struct {
	backend Backend
	deliver Deliverer
	log     *logger.Logger
}

// NewService creates a convert service.
func NewService(backend Backend, deliverer Deliverer) *Service {
	return &Service{
		backend: backend,
		deliver: deliverer,
		log:     logger.Default().WithComponent("convert"),
	}
}

// Run uploads the file, converts it and delivers the result.
func (s *Service) Run(ctx context.Context, req Request) (*delivery.Result, error) {
	format := strings.ToLower(strings.TrimPrefix(req.OutputFormat, "."))
	if !supportedFormats[format] {
		return nil, apperrors.ValidationError("unsupported output format: " + req.OutputFormat)
	}

	f, err := os.Open(req.Path)
	if err != nil {
		return nil, apperrors.ValidationError("cannot open input file").WithCause(err)
	}
	defer f.Close()

	name := filepath.Base(req.Path)
	uploaded, err := s.backend.UploadVideo(ctx, name, f)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "file uploaded for conversion", map[string]interface{}{
		"filename": uploaded.Filename,
		"size":     uploaded.Size,
	})

	convertReq := &api.ConvertRequest{
		Filename:     uploaded.Filename,
		OutputFormat: format,
	}
	if req.Quality != "" {
		height := platforms.ParseQuality(req.Quality)
		if height > 0 {
			convertReq.Quality = req.Quality
		}
	}

	converted, err := s.backend.ConvertVideo(ctx, convertReq)
	if err != nil {
		return nil, err
	}

	result, err := s.deliver.Deliver(ctx, delivery.Descriptor{Filename: converted, Locator: converted})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "conversion delivered", map[string]interface{}{
		"filename": result.Filename,
		"location": result.Location,
	})
	return result, nil
}

// Uploads lists files already uploaded and available for conversion.
func (s *Service) Uploads(ctx context.Context) ([]api.UploadedVideo, error) {
	return s.backend.GetUploadedVideos(ctx)
}

// RemoveUpload deletes an uploaded file from the backend.
func (s *Service) RemoveUpload(ctx context.Context, id string) error {
	return s.backend.DeleteUploadedVideo(ctx, id)
}
