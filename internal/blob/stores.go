// Package blob selects a blob storage backend per request.
package blob

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// Stores holds the configured backends. A nil field means the backend is not
// available in this process.
type Stores struct {
	Local   domain.BlobStore
	S3      domain.BlobStore
	Default domain.StorageBackend
}

// ParseBackend maps a user-supplied name to a backend. An empty name selects
// def.
func ParseBackend(name string, def domain.StorageBackend) (domain.StorageBackend, error) {
	switch domain.StorageBackend(strings.ToLower(strings.TrimSpace(name))) {
	case "":
		return def, nil
	case domain.StorageLocal:
		return domain.StorageLocal, nil
	case domain.StorageS3:
		return domain.StorageS3, nil
	default:
		return "", fmt.Errorf("blob: unknown storage backend %q (valid: local, s3)", name)
	}
}

// For returns the store for backend, or the default store when backend is
// empty.
func (s Stores) For(backend domain.StorageBackend) (domain.BlobStore, error) {
	if backend == "" {
		backend = s.Default
	}
	var store domain.BlobStore
	switch backend {
	case domain.StorageLocal:
		store = s.Local
	case domain.StorageS3:
		store = s.S3
	default:
		return nil, fmt.Errorf("blob: unknown storage backend %q", backend)
	}
	if store == nil {
		return nil, fmt.Errorf("blob: %s: %w", backend, domain.ErrNoStorage)
	}
	return store, nil
}
