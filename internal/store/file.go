package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vidgrab/vidgrab/internal/metrics"
)

// FileStore keeps one JSON file per key under a base directory.
type FileStore struct {
	baseDir string
}

// NewFileStore creates the base directory if needed and returns a file-backed store.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", baseDir, err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(key Key) string {
	return filepath.Join(s.baseDir, string(key)+".json")
}

// Get reads and unmarshals the record for key.
func (s *FileStore) Get(ctx context.Context, key Key, v any) error {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read record %s: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		// Corrupt record: discard it and report the key as absent.
		os.Remove(s.path(key))
		metrics.IncrCounter(metrics.CounterStoreDiscards)
		return ErrNotFound
	}

	return nil
}

// Set writes the record via a temp file and rename, so a reader never
// observes a partial write.
func (s *FileStore) Set(ctx context.Context, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.baseDir, string(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write record %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file for %s: %w", key, err)
	}

	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace record %s: %w", key, err)
	}

	return nil
}

// Delete removes the record for key.
func (s *FileStore) Delete(ctx context.Context, key Key) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record %s: %w", key, err)
	}
	return nil
}

// Clear removes every record file in the base directory.
func (s *FileStore) Clear(ctx context.Context) error {
	matches, err := filepath.Glob(filepath.Join(s.baseDir, "*.json"))
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", m, err)
		}
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}
