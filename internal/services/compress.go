package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"cloudmedia/internal/common"
	"cloudmedia/internal/compression"
	"cloudmedia/internal/database"
	"cloudmedia/internal/metrics"
	"cloudmedia/internal/models"
	"cloudmedia/internal/transform"
)

// PDFRenderer re-encodes PDFs locally.
type PDFRenderer interface {
	RenderPreset(ctx context.Context, pdf []byte, setting string) ([]byte, error)
	Search(ctx context.Context, pdf []byte, targetBytes int64) (compression.SearchResult, error)
}

// CompressRequest asks for one asset to be compressed. PDF may carry the raw
// file; when absent the stored PDF is read back.
type CompressRequest struct {
	AssetID  string
	TargetKB *float64
	TargetMB *float64
	PDF      []byte
}

// CompressResult is returned to API callers.
type CompressResult struct {
	ResultURL     string `json:"resultUrl"`
	OriginalBytes int64  `json:"originalBytes"`
	Bytes         int64  `json:"bytes"`
	TargetBytes   *int64 `json:"targetBytes"`
	Warning       string `json:"warning,omitempty"`
	Format        string `json:"format"`
	ResourceType  string `json:"resourceType"`
	PDFBase64     string `json:"pdfBase64,omitempty"`
}

var errPDFRequired = common.BadRequest("compress", "PDF file is required for PDF compression")

// outcome is what a strategy produced before anything is persisted.
type outcome struct {
	data     []byte
	url      string
	applied  map[string]any
	warning  string
	attempts int
}

// CompressionService routes compress requests to the strategy matching the
// asset kind and records the result.
type CompressionService struct {
	db       *database.Database
	backend  Backend
	renderer PDFRenderer
	store    ArtifactStore
	log      zerolog.Logger
}

// NewCompressionService creates a new compression service
func NewCompressionService(db *database.Database, backend Backend, renderer PDFRenderer, store ArtifactStore, log zerolog.Logger) *CompressionService {
	return &CompressionService{
		db:       db,
		backend:  backend,
		renderer: renderer,
		store:    store,
		log:      log.With().Str("component", "compression-service").Logger(),
	}
}

// Compress runs one compress operation for userID.
func (s *CompressionService) Compress(ctx context.Context, userID string, req CompressRequest) (*CompressResult, error) {
	if req.AssetID == "" {
		return nil, common.BadRequest("compress", "Bad request")
	}
	targetBytes := common.TargetBytes(req.TargetKB, req.TargetMB)

	asset, err := s.db.FindAsset(ctx, req.AssetID, userID)
	if err != nil {
		return nil, common.Internal("compress", err)
	}
	if asset == nil {
		return nil, common.NotFound("compress", "Not found")
	}

	originalBytes := asset.Bytes
	if targetBytes != nil && *targetBytes >= originalBytes {
		return nil, common.BadRequest("compress", "Target size must be smaller than the original file size")
	}

	kind := kindOf(asset)
	mode := models.ModeBestQuality
	if targetBytes != nil {
		mode = models.ModeTargetSize
	}

	var out *outcome
	switch kind {
	case "video":
		out, err = s.compressVideo(ctx, asset, targetBytes)
	case "pdf":
		out, err = s.compressPDF(ctx, asset, req.PDF, targetBytes)
	default:
		out, err = s.compressImage(ctx, asset, targetBytes)
	}
	if err != nil {
		metrics.RecordCompression(kind, mode, "error", 0, originalBytes, 0)
		s.log.Error().Err(err).Str("asset_id", asset.ID).Str("kind", kind).Msg("compression failed")
		return nil, err
	}

	resultURL, err := s.persist(ctx, asset, userID, kind, mode, targetBytes, originalBytes, out)
	if err != nil {
		metrics.RecordCompression(kind, mode, "error", out.attempts, originalBytes, 0)
		return nil, err
	}

	result := &CompressResult{
		ResultURL:     resultURL,
		OriginalBytes: originalBytes,
		Bytes:         asset.Bytes,
		TargetBytes:   targetBytes,
		Warning:       out.warning,
		Format:        asset.OriginalFormat,
		ResourceType:  asset.ResourceType,
	}
	if kind == "pdf" {
		result.Bytes = int64(len(out.data))
		result.Format = common.FormatPDF
		result.PDFBase64 = base64.StdEncoding.EncodeToString(out.data)
	}

	status := "ok"
	if out.warning != "" {
		status = "warning"
	}
	metrics.RecordCompression(kind, mode, status, out.attempts, originalBytes, result.Bytes)
	s.log.Info().
		Str("asset_id", asset.ID).
		Str("kind", kind).
		Str("mode", mode).
		Int64("original_bytes", originalBytes).
		Int64("bytes", result.Bytes).
		Str("warning", out.warning).
		Msg("compression completed")
	return result, nil
}

func kindOf(asset *models.Asset) string {
	switch {
	case asset.IsVideo():
		return "video"
	case asset.IsPDF():
		return "pdf"
	default:
		return "image"
	}
}

func (s *CompressionService) compressVideo(ctx context.Context, asset *models.Asset, targetBytes *int64) (*outcome, error) {
	if targetBytes == nil {
		eager, err := s.backend.Explicit(ctx, asset.PublicID, common.ResourceVideo,
			transform.Chain{{Quality: transform.QualityAutoBest}}, "mp4")
		if err != nil {
			return nil, err
		}
		data, err := s.backend.Fetch(ctx, eager.SecureURL)
		if err != nil {
			return nil, err
		}
		return &outcome{
			data:     data,
			url:      eager.SecureURL,
			applied:  map[string]any{"quality": transform.QualityAutoBest, "format": "mp4"},
			attempts: 1,
		}, nil
	}

	duration := s.videoDuration(ctx, asset)
	kbps, err := compression.EstimateBitrateKbps(*targetBytes, duration)
	if err != nil {
		if errors.Is(err, compression.ErrMissingDuration) {
			return nil, common.NewError(common.KindBadRequest, "compress", "Missing video duration; cannot estimate bitrate", err)
		}
		return nil, common.BadRequest("compress", err.Error())
	}

	format := asset.OriginalFormat
	if format == "" {
		format = "mp4"
	}
	bitRate := transform.BitRateKbps(kbps)
	eager, err := s.backend.Explicit(ctx, asset.PublicID, common.ResourceVideo,
		transform.Chain{{BitRate: bitRate, Quality: transform.QualityAuto}}, format)
	if err != nil {
		return nil, err
	}
	data, err := s.backend.Fetch(ctx, eager.SecureURL)
	if err != nil {
		return nil, err
	}

	out := &outcome{
		data:     data,
		url:      eager.SecureURL,
		applied:  map[string]any{"bit_rate": bitRate, "quality": transform.QualityAuto},
		attempts: 1,
	}
	if int64(len(data)) > *targetBytes {
		out.warning = compression.WarnBestEffort
	}
	return out, nil
}

// videoDuration prefers the stored duration and falls back to the backend.
func (s *CompressionService) videoDuration(ctx context.Context, asset *models.Asset) float64 {
	if asset.HasDuration() {
		return *asset.Duration
	}
	res, err := s.backend.Resource(ctx, common.ResourceVideo, asset.PublicID)
	if err != nil {
		s.log.Warn().Err(err).Str("public_id", asset.PublicID).Msg("duration lookup failed")
		return 0
	}
	if res.Duration != nil && *res.Duration > 0 {
		return *res.Duration
	}
	return 0
}

func (s *CompressionService) compressPDF(ctx context.Context, asset *models.Asset, upload []byte, targetBytes *int64) (*outcome, error) {
	original, err := s.sourcePDF(ctx, asset, upload)
	if err != nil {
		return nil, err
	}

	if targetBytes == nil {
		data, err := s.renderer.RenderPreset(ctx, original, compression.PresetPrepress)
		if err != nil {
			return nil, err
		}
		out := &outcome{
			data:     data,
			applied:  map[string]any{"method": "ghostscript", "setting": compression.PresetPrepress},
			attempts: 1,
		}
		if len(data) >= len(original) {
			out.data = original
			out.warning = compression.WarnAlreadyCompressed
		}
		return out, nil
	}

	res, err := s.renderer.Search(ctx, original, *targetBytes)
	if err != nil {
		return nil, err
	}

	applied := map[string]any{"method": "ghostscript_custom"}
	if res.Original {
		applied["returnedOriginal"] = true
	} else {
		applied["dpi"] = res.Best.DPI
		applied["jpegQuality"] = res.Best.JPEGQuality
	}
	return &outcome{
		data:     res.Best.Data,
		applied:  applied,
		warning:  res.Warning,
		attempts: res.Attempts,
	}, nil
}

// sourcePDF returns the uploaded file, or reads the PDF from wherever the
// asset currently lives: the artifact store after a compression, the
// backend before one.
func (s *CompressionService) sourcePDF(ctx context.Context, asset *models.Asset, upload []byte) ([]byte, error) {
	if len(upload) > 0 {
		if !mimetype.Detect(upload).Is("application/pdf") {
			return nil, errPDFRequired
		}
		return upload, nil
	}

	var (
		data []byte
		err  error
	)
	switch asset.Storage {
	case "":
		url := s.backend.DeliveryURL(common.ResourceImage, asset.PublicID, common.FormatPDF, nil)
		data, err = s.backend.Fetch(ctx, url)
	case s.store.Name():
		data, err = s.store.Get(ctx, asset.PublicID)
		if err != nil && common.KindOf(err) == common.KindInternal {
			err = common.Backend("store", err)
		}
	default:
		s.log.Warn().
			Str("asset_id", asset.ID).
			Str("storage", asset.Storage).
			Str("configured", s.store.Name()).
			Msg("stored pdf is in a different artifact backend")
		return nil, errPDFRequired
	}
	if err != nil {
		return nil, err
	}
	if !mimetype.Detect(data).Is("application/pdf") {
		return nil, errPDFRequired
	}
	return data, nil
}

func (s *CompressionService) compressImage(ctx context.Context, asset *models.Asset, targetBytes *int64) (*outcome, error) {
	if targetBytes == nil {
		url := s.backend.DeliveryURL(common.ResourceImage, asset.PublicID, asset.OriginalFormat,
			transform.Chain{{Quality: transform.QualityAutoBest}})
		data, err := s.backend.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		return &outcome{
			data:     data,
			url:      url,
			applied:  map[string]any{"quality": transform.QualityAutoBest},
			attempts: 1,
		}, nil
	}

	fetched := make(map[int][]byte, len(compression.DefaultQualityLadder))
	probe := func(ctx context.Context, q int) (string, int64, error) {
		url := s.backend.DeliveryURL(common.ResourceImage, asset.PublicID, asset.OriginalFormat,
			transform.Chain{{Quality: transform.Quality(q)}})
		data, err := s.backend.Fetch(ctx, url)
		if err != nil {
			return "", 0, err
		}
		fetched[q] = data
		return url, int64(len(data)), nil
	}

	res, err := compression.ScanLadder(ctx, compression.DefaultQualityLadder, *targetBytes, probe)
	if err != nil {
		return nil, err
	}
	return &outcome{
		data:     fetched[res.Quality],
		url:      res.Ref,
		applied:  map[string]any{"quality": res.Quality},
		warning:  res.Warning,
		attempts: res.Attempts,
	}, nil
}

// persist stores the output, rewrites the asset in place and appends the
// conversion record. The row update and insert share one transaction.
func (s *CompressionService) persist(ctx context.Context, asset *models.Asset, userID, kind, mode string, targetBytes *int64, originalBytes int64, out *outcome) (string, error) {
	var resultURL string

	if kind == "pdf" {
		obj, err := s.store.Put(ctx, artifactKey(asset.PublicID), out.data, "application/pdf")
		if err != nil {
			return "", common.Backend("store", err)
		}
		asset.PublicID = obj.Key
		asset.Storage = s.store.Name()
		asset.ResourceType = common.ResourceImage
		asset.OriginalFormat = common.FormatPDF
		asset.Bytes = obj.Bytes
		asset.Width = nil
		asset.Height = nil
		resultURL = obj.URL
	} else {
		res, err := s.backend.Upload(ctx, transform.UploadParams{
			ResourceType: asset.ResourceType,
			PublicID:     asset.PublicID,
			Overwrite:    true,
			Invalidate:   true,
			Data:         out.data,
		})
		if err != nil {
			return "", err
		}
		applyUpload(asset, res, int64(len(out.data)))
		resultURL = res.SecureURL
	}
	if resultURL == "" {
		resultURL = out.url
	}

	options := datatypes.JSONMap{
		models.OptMode:          mode,
		models.OptOriginalBytes: originalBytes,
		models.OptAchieved:      asset.Bytes,
		models.OptApplied:       out.applied,
	}
	if targetBytes != nil {
		options[models.OptTargetBytes] = *targetBytes
	}
	if out.warning != "" {
		options[models.OptWarning] = out.warning
	}

	err := s.db.Transaction(ctx, func(tx *database.Database) error {
		if err := tx.UpdateAsset(ctx, asset); err != nil {
			return err
		}
		return tx.CreateConversion(ctx, &models.Conversion{
			UserID:       userID,
			AssetID:      asset.ID,
			Kind:         common.KindCompress,
			TargetFormat: asset.OriginalFormat,
			Options:      options,
			ResultURL:    resultURL,
		})
	})
	if err != nil {
		return "", common.Internal("compress", err)
	}
	return resultURL, nil
}

func applyUpload(asset *models.Asset, res *transform.UploadResult, fallbackBytes int64) {
	if res.PublicID != "" {
		asset.PublicID = res.PublicID
	}
	if res.ResourceType != "" {
		asset.ResourceType = res.ResourceType
	}
	if res.Format != "" {
		asset.OriginalFormat = res.Format
	}
	asset.Bytes = res.Bytes
	if asset.Bytes == 0 {
		asset.Bytes = fallbackBytes
	}
	if res.Width != nil {
		asset.Width = res.Width
	}
	if res.Height != nil {
		asset.Height = res.Height
	}
	if res.Duration != nil {
		asset.Duration = res.Duration
	}
}

// artifactKey names the stored output for publicID. Compressing an already
// compressed PDF overwrites the same key.
func artifactKey(publicID string) string {
	base := strings.TrimSuffix(publicID, "."+common.FormatPDF)
	return strings.TrimSuffix(base, "_compressed") + "_compressed.pdf"
}
