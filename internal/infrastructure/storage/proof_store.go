package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/school-billing/internal/application/port"
	"github.com/garyjia/school-billing/pkg/utils"
)

// ProofStore keeps uploaded proof images under a per-invoice folder and
// hands out URL handles for them. A handle is valid until Release.
type ProofStore struct {
	files        port.FileStorage
	publicPrefix string
	logger       *zap.Logger
}

// NewProofStore creates a ProofStore serving files under publicPrefix
func NewProofStore(files port.FileStorage, publicPrefix string, logger *zap.Logger) *ProofStore {
	return &ProofStore{
		files:        files,
		publicPrefix: "/" + strings.Trim(publicPrefix, "/"),
		logger:       logger,
	}
}

// Store saves the image and returns its display handle
func (s *ProofStore) Store(ctx context.Context, invoiceID, fileName string, content []byte) (string, error) {
	folder := utils.SanitizeFileName(invoiceID)
	name := uuid.NewString() + "_" + utils.SanitizeFileName(fileName)
	rel := path.Join(folder, name)

	if err := s.files.Save(ctx, rel, content); err != nil {
		return "", fmt.Errorf("failed to store proof image: %w", err)
	}
	return s.publicPrefix + "/" + rel, nil
}

// Release deletes the image behind a handle. Unknown handles are ignored.
func (s *ProofStore) Release(ctx context.Context, handle string) error {
	rel, ok := s.relativePath(handle)
	if !ok {
		s.logger.Warn("Ignoring release of foreign handle", zap.String("handle", handle))
		return nil
	}
	if err := s.files.Delete(ctx, rel); err != nil {
		return fmt.Errorf("failed to release proof image: %w", err)
	}
	return nil
}

// Exists reports whether the handle still points at a stored image
func (s *ProofStore) Exists(ctx context.Context, handle string) bool {
	rel, ok := s.relativePath(handle)
	return ok && s.files.Exists(ctx, rel)
}

func (s *ProofStore) relativePath(handle string) (string, bool) {
	prefix := s.publicPrefix + "/"
	if !strings.HasPrefix(handle, prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(handle, prefix)
	if rel == "" || strings.Contains(rel, "..") {
		return "", false
	}
	return rel, true
}
