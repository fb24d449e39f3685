package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"cloudmedia/internal/config"
	"cloudmedia/internal/transform"
)

// Object describes a stored artifact.
type Object struct {
	// Key is the storage reference recorded on the asset row.
	Key   string
	URL   string
	Bytes int64
}

// Store persists compressed artifacts.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error)
	// Get reads back an object by the Key Put returned.
	Get(ctx context.Context, key string) ([]byte, error)
	Name() string
}

// New selects the store configured by ARTIFACT_BACKEND.
func New(ctx context.Context, cfg *config.Config, backend Backend, log zerolog.Logger) (Store, error) {
	switch cfg.ArtifactBackend {
	case "", "cloudinary":
		return NewCloudinaryStore(backend, log), nil
	case "s3":
		return NewS3Storage(ctx, cfg, log)
	case "local":
		return NewLocalStorage(cfg, log)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.ArtifactBackend)
	}
}

// Backend is the part of the transform client the cloudinary store needs.
type Backend interface {
	Upload(ctx context.Context, p transform.UploadParams) (*transform.UploadResult, error)
	DeliveryURL(resourceType, publicID, format string, chain transform.Chain) string
	Fetch(ctx context.Context, url string) ([]byte, error)
}
