package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vidgrab/vidgrab/internal/config"
)

// Sink receives a delivered artifact and stores it in the user's environment.
type Sink interface {
	// Save stores the artifact and returns its final location and size.
	Save(ctx context.Context, filename, contentType string, content io.Reader) (string, int64, error)
}

// LocalSink writes artifacts into a directory.
type LocalSink struct {
	dir string
}

// NewLocalSink creates the directory if needed.
func NewLocalSink(dir string) (*LocalSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory %s: %w", dir, err)
	}
	return &LocalSink{dir: dir}, nil
}

// Save writes the artifact to <dir>/<filename>, replacing any previous file
// of the same name.
func (s *LocalSink) Save(ctx context.Context, filename, contentType string, content io.Reader) (string, int64, error) {
	path := filepath.Join(s.dir, filename)

	file, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	n, err := io.Copy(file, content)
	if err != nil {
		file.Close()
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to close %s: %w", path, err)
	}

	if n == 0 {
		os.Remove(path)
	}

	return path, n, nil
}

// MinioSink uploads artifacts to an S3-compatible bucket.
type MinioSink struct {
	client *minio.Client
	bucket string
}

// NewMinioSink creates a sink backed by the configured bucket.
func NewMinioSink(cfg *config.Config) (*MinioSink, error) {
	endpoint := cfg.MinioEndpoint
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioSink{client: client, bucket: cfg.MinioBucket}, nil
}

// Save streams the artifact into the bucket.
func (s *MinioSink) Save(ctx context.Context, filename, contentType string, content io.Reader) (string, int64, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Size -1 streams with multipart upload
	info, err := s.client.PutObject(ctx, s.bucket, filename, content, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload %s: %w", filename, err)
	}

	if info.Size == 0 {
		s.client.RemoveObject(ctx, s.bucket, filename, minio.RemoveObjectOptions{})
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, filename), info.Size, nil
}

// OpenSink creates the sink backend selected by the configuration.
func OpenSink(cfg *config.Config) (Sink, error) {
	switch cfg.SinkBackend {
	case "", "local":
		return NewLocalSink(cfg.DownloadDir)
	case "minio":
		return NewMinioSink(cfg)
	default:
		return nil, fmt.Errorf("unknown sink backend %q", cfg.SinkBackend)
	}
}
