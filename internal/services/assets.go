package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"cloudmedia/internal/common"
	"cloudmedia/internal/database"
	"cloudmedia/internal/metrics"
	"cloudmedia/internal/models"
	"cloudmedia/internal/transform"
)

// UploadRequest is one file received from a client.
type UploadRequest struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AssetResponse summarizes a stored asset.
type AssetResponse struct {
	AssetID        string   `json:"assetId"`
	PublicID       string   `json:"publicId"`
	ResourceType   string   `json:"resourceType"`
	OriginalFormat string   `json:"originalFormat"`
	Bytes          int64    `json:"bytes"`
	Width          *int     `json:"width"`
	Height         *int     `json:"height"`
	Duration       *float64 `json:"duration"`
}

// AssetService uploads files to the backend and tracks them.
type AssetService struct {
	db             *database.Database
	backend        Backend
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewAssetService creates a new asset service
func NewAssetService(db *database.Database, backend Backend, maxUploadBytes int64, log zerolog.Logger) *AssetService {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 100 * common.MB
	}
	return &AssetService{
		db:             db,
		backend:        backend,
		maxUploadBytes: maxUploadBytes,
		log:            log.With().Str("component", "asset-service").Logger(),
	}
}

// DetectMIME trusts a specific client header and sniffs the content otherwise.
func DetectMIME(header string, data []byte) string {
	header = strings.TrimSpace(strings.SplitN(header, ";", 2)[0])
	if header != "" && header != "application/octet-stream" {
		return header
	}
	return mimetype.Detect(data).String()
}

// ResourceTypeFor maps a MIME type onto the backend resource kind. PDFs are
// stored as images so the backend can render pages.
func ResourceTypeFor(mime string) string {
	switch {
	case mime == "":
		return common.ResourceAuto
	case mime == "application/pdf", strings.HasPrefix(mime, "image/"):
		return common.ResourceImage
	case strings.HasPrefix(mime, "video/"), strings.HasPrefix(mime, "audio/"):
		return common.ResourceVideo
	default:
		return common.ResourceAuto
	}
}

// Upload stores the file under the user's folder and records an asset row.
func (s *AssetService) Upload(ctx context.Context, userID string, req UploadRequest) (*AssetResponse, error) {
	if len(req.Data) == 0 {
		return nil, common.BadRequest("upload", "Missing file")
	}

	mime := DetectMIME(req.ContentType, req.Data)
	rt := ResourceTypeFor(mime)
	if rt == common.ResourceVideo && int64(len(req.Data)) > s.maxUploadBytes {
		metrics.RecordUpload(rt, "rejected", int64(len(req.Data)))
		return nil, common.NewError(common.KindTooLarge, "upload",
			fmt.Sprintf("File too large. Max size is %d MB.", s.maxUploadBytes/common.MB), common.ErrPayloadTooLarge)
	}

	res, err := s.backend.Upload(ctx, transform.UploadParams{
		ResourceType: rt,
		Folder:       "cloudmedia/" + userID,
		Filename:     req.Filename,
		Data:         req.Data,
	})
	if err != nil {
		metrics.RecordUpload(rt, "error", int64(len(req.Data)))
		return nil, err
	}

	asset := &models.Asset{
		UserID:         userID,
		PublicID:       res.PublicID,
		ResourceType:   res.ResourceType,
		OriginalFormat: res.Format,
		Bytes:          res.Bytes,
		Width:          res.Width,
		Height:         res.Height,
		Duration:       res.Duration,
	}
	if mime != "" {
		asset.MimeType = &mime
	}
	if asset.ResourceType == "" {
		asset.ResourceType = rt
	}
	if asset.OriginalFormat == "" {
		asset.OriginalFormat = "unknown"
	}
	if err := s.db.CreateAsset(ctx, asset); err != nil {
		return nil, common.Internal("upload", err)
	}

	metrics.RecordUpload(asset.ResourceType, "success", asset.Bytes)
	s.log.Info().
		Str("asset_id", asset.ID).
		Str("public_id", asset.PublicID).
		Str("resource_type", asset.ResourceType).
		Int64("bytes", asset.Bytes).
		Msg("asset uploaded")

	return &AssetResponse{
		AssetID:        asset.ID,
		PublicID:       asset.PublicID,
		ResourceType:   asset.ResourceType,
		OriginalFormat: asset.OriginalFormat,
		Bytes:          asset.Bytes,
		Width:          asset.Width,
		Height:         asset.Height,
		Duration:       asset.Duration,
	}, nil
}
