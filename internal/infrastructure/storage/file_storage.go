package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/school-billing/internal/application/port"
)

// LocalFileStorage keeps proof images under a single root directory
type LocalFileStorage struct {
	root   string
	logger *zap.Logger
}

// NewLocalFileStorage creates a LocalFileStorage rooted at root
func NewLocalFileStorage(root string, logger *zap.Logger) *LocalFileStorage {
	return &LocalFileStorage{root: root, logger: logger}
}

// Save writes content under a temporary name and renames it into place, so
// the static handler never serves a partial image.
func (s *LocalFileStorage) Save(ctx context.Context, rel string, content []byte) error {
	target, err := s.resolve(rel)
	if err != nil {
		return err
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Error("Failed to create proof directory", zap.String("dir", dir), zap.Error(err))
		return fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		cleanup()
		s.logger.Error("Failed to write proof image", zap.String("path", target), zap.Error(err))
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		cleanup()
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	s.logger.Debug("Proof image written", zap.String("path", target), zap.Int("bytes", len(content)))
	return nil
}

// Read returns the content at rel
func (s *LocalFileStorage) Read(ctx context.Context, rel string) ([]byte, error) {
	target, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// Exists reports whether a regular file is stored at rel
func (s *LocalFileStorage) Exists(ctx context.Context, rel string) bool {
	target, err := s.resolve(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(target)
	return err == nil && info.Mode().IsRegular()
}

// Delete removes the file at rel. A missing file is not an error.
func (s *LocalFileStorage) Delete(ctx context.Context, rel string) error {
	target, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("Failed to delete proof image", zap.String("path", target), zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Root returns the storage root directory
func (s *LocalFileStorage) Root() string {
	return s.root
}

// resolve maps a slash-separated relative path to a file strictly inside root
func (s *LocalFileStorage) resolve(rel string) (string, error) {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve storage root: %w", err)
	}
	target, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the storage root", rel)
	}
	return target, nil
}

var _ port.FileStorage = (*LocalFileStorage)(nil)
