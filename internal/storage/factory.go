package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/timmy/rollcall/internal/config"
)

// Backends accepted in storage.backend.
const (
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// New creates the ObjectStorage selected by cfg.Backend.
// The S3 backend also makes sure the bucket exists.
// Parameters:
//   - ctx: context for the bucket check.
//   - cfg: storage configuration including backend, endpoint, credentials, and bucket.
//
// Returns:
//   - ObjectStorage: initialized storage implementation.
//   - error: non-nil if the backend is unknown or cannot be reached.
func New(ctx context.Context, cfg *config.StorageConfig) (ObjectStorage, error) {
	switch cfg.Backend {
	case BackendMemory:
		base := cfg.PublicURL
		if base == "" {
			base = "memory://" + cfg.Bucket
		}
		return NewMemoryStorage(strings.TrimRight(base, "/")), nil
	case BackendS3, "":
		s, err := NewS3Storage(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
