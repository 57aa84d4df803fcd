package port

import "context"

// FileStorage stores proof images by slash-separated relative path
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
}
