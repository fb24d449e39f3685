package storage

import (
	"context"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"cloudmedia/internal/common"
	"cloudmedia/internal/transform"
)

// CloudinaryStore uploads artifacts as raw resources so they are served as
// files rather than rendered previews.
type CloudinaryStore struct {
	backend Backend
	log          zerolog.Logger
}

func NewCloudinaryStore(backend Backend, log zerolog.Logger) *CloudinaryStore {
	return &CloudinaryStore{
		backend: backend,
		log:     log.With().Str("component", "cloudinary-storage").Logger(),
	}
}

func (c *CloudinaryStore) Name() string { return "cloudinary" }

// Put uploads data under key. A file extension on key becomes the format.
func (c *CloudinaryStore) Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	ext := path.Ext(key)
	publicID := strings.TrimSuffix(key, ext)

	res, err := c.backend.Upload(ctx, transform.UploadParams{
		ResourceType: common.ResourceRaw,
		PublicID:     publicID,
		Format:       strings.TrimPrefix(ext, "."),
		Overwrite:    true,
		Invalidate:   true,
		Filename:     path.Base(key),
		Data:         data,
	})
	if err != nil {
		return nil, err
	}

	if res.PublicID != "" {
		publicID = res.PublicID
	}
	obj := &Object{Key: publicID + ext, URL: res.SecureURL, Bytes: res.Bytes}
	if obj.Bytes == 0 {
		obj.Bytes = int64(len(data))
	}
	c.log.Debug().Str("key", obj.Key).Int64("bytes", obj.Bytes).Msg("artifact stored")
	return obj, nil
}

// Get downloads the raw resource stored under key.
func (c *CloudinaryStore) Get(ctx context.Context, key string) ([]byte, error) {
	ext := path.Ext(key)
	url := c.backend.DeliveryURL(common.ResourceRaw, strings.TrimSuffix(key, ext), strings.TrimPrefix(ext, "."), nil)
	return c.backend.Fetch(ctx, url)
}
