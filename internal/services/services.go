package services

import (
	"context"

	"cloudmedia/internal/storage"
	"cloudmedia/internal/transform"
)

// Backend is the remote upload and transform API.
type Backend interface {
	Upload(ctx context.Context, p transform.UploadParams) (*transform.UploadResult, error)
	Explicit(ctx context.Context, publicID, resourceType string, chain transform.Chain, format string) (*transform.EagerResult, error)
	Resource(ctx context.Context, resourceType, publicID string) (*transform.Resource, error)
	DeliveryURL(resourceType, publicID, format string, chain transform.Chain) string
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ArtifactStore persists compressed PDFs.
type ArtifactStore = storage.Store

var _ Backend = (*transform.Client)(nil)
