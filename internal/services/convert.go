package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"cloudmedia/internal/common"
	"cloudmedia/internal/concurrency"
	"cloudmedia/internal/database"
	"cloudmedia/internal/metrics"
	"cloudmedia/internal/models"
	"cloudmedia/internal/transform"
)

var (
	imageOut    = map[string]bool{"jpg": true, "png": true, "webp": true, "avif": true, "pdf": true}
	pdfPageOut  = map[string]bool{"jpg": true, "png": true, "webp": true}
	videoOut    = map[string]bool{"mp4": true, "webm": true, "gif": true, "mp3": true, "wav": true, "m4a": true}
	errNoResult = common.NewError(common.KindBadRequest, "convert", "Unsupported conversion", common.ErrUnsupportedConversion)
)

const (
	MinDensity     = 72
	MaxDensity     = 300
	DefaultDensity = 150

	InlineResult = "inline:base64"
)

// ConvertRequest selects one conversion. AssetIDs is only read for
// images_to_pdf.
type ConvertRequest struct {
	Kind           string   `json:"kind"`
	AssetID        string   `json:"assetId"`
	AssetIDs       []string `json:"assetIds"`
	TargetFormat   string   `json:"targetFormat"`
	Quality        string   `json:"quality"`
	Density        *int     `json:"density"`
	AudioFrequency string   `json:"audioFrequency"`
}

// ConvertResult carries whichever output the conversion kind produces.
type ConvertResult struct {
	ResultURL string   `json:"resultUrl,omitempty"`
	PDFBase64 string   `json:"pdfBase64,omitempty"`
	PageURLs  []string `json:"pageUrls,omitempty"`
	PageCount int      `json:"pageCount,omitempty"`
}

// ConversionService turns stored assets into other formats.
type ConversionService struct {
	db      *database.Database
	backend Backend
	log     zerolog.Logger
}

// NewConversionService creates a new conversion service
func NewConversionService(db *database.Database, backend Backend, log zerolog.Logger) *ConversionService {
	return &ConversionService{
		db:      db,
		backend: backend,
		log:     log.With().Str("component", "conversion-service").Logger(),
	}
}

// Convert runs req for userID and records a conversion row.
func (s *ConversionService) Convert(ctx context.Context, userID string, req ConvertRequest) (*ConvertResult, error) {
	res, err := s.convert(ctx, userID, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordConversion(req.Kind, status)
	return res, err
}

func (s *ConversionService) convert(ctx context.Context, userID string, req ConvertRequest) (*ConvertResult, error) {
	if req.Kind == "" {
		return nil, common.BadRequest("convert", "Bad request")
	}
	primaryID := req.AssetID
	if primaryID == "" && len(req.AssetIDs) > 0 {
		primaryID = req.AssetIDs[0]
	}
	if primaryID == "" {
		return nil, common.BadRequest("convert", "Bad request")
	}

	asset, err := s.db.FindAsset(ctx, primaryID, userID)
	if err != nil {
		return nil, common.Internal("convert", err)
	}
	if asset == nil {
		return nil, common.NotFound("convert", "Not found")
	}

	switch req.Kind {
	case common.KindImageFormat:
		return s.imageFormat(ctx, userID, asset, req)
	case common.KindImagesToPDF:
		return s.imagesToPDF(ctx, userID, asset, req.AssetIDs)
	case common.KindPDFToImage:
		return s.pdfToImage(ctx, userID, asset, req)
	case common.KindVideoToAudio:
		return s.videoToAudio(ctx, userID, asset, req)
	default:
		return nil, errNoResult
	}
}

func (s *ConversionService) imageFormat(ctx context.Context, userID string, asset *models.Asset, req ConvertRequest) (*ConvertResult, error) {
	if asset.ResourceType != common.ResourceImage || !imageOut[req.TargetFormat] {
		return nil, errNoResult
	}
	quality := req.Quality
	if quality == "" {
		quality = transform.QualityAuto
	}

	url := s.backend.DeliveryURL(common.ResourceImage, asset.PublicID, req.TargetFormat,
		transform.Chain{{Quality: quality}, {FetchFormat: req.TargetFormat}})
	if err := s.record(ctx, userID, asset.ID, req.Kind, req.TargetFormat, datatypes.JSONMap{"quality": quality}, url); err != nil {
		return nil, err
	}
	return &ConvertResult{ResultURL: url}, nil
}

func (s *ConversionService) imagesToPDF(ctx context.Context, userID string, primary *models.Asset, ids []string) (*ConvertResult, error) {
	unique := uniqueIDs(ids)
	if len(unique) < 1 {
		return nil, common.BadRequest("convert", "Select at least 1 image")
	}

	assets, err := s.db.FindAssets(ctx, unique, userID, common.ResourceImage)
	if err != nil {
		return nil, common.Internal("convert", err)
	}
	if len(assets) != len(unique) {
		return nil, common.NotFound("convert", "One or more assets not found")
	}

	images, err := concurrency.Map(ctx, len(assets), func(ctx context.Context, i int) ([]byte, error) {
		url := s.backend.DeliveryURL(common.ResourceImage, assets[i].PublicID, "jpg",
			transform.Chain{{Quality: transform.QualityAuto}})
		data, err := s.backend.Fetch(ctx, url)
		if err != nil {
			s.log.Error().Err(err).Str("asset_id", assets[i].ID).Msg("source image fetch failed")
			return nil, common.BadRequest("convert", "Failed to fetch source image")
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}

	pdf, err := assemblePDF(images)
	if err != nil {
		return nil, common.NewError(common.KindInternal, "convert", "Failed to build PDF", err)
	}

	options := datatypes.JSONMap{"count": len(assets)}
	if err := s.record(ctx, userID, primary.ID, common.KindImagesToPDF, common.FormatPDF, options, InlineResult); err != nil {
		return nil, err
	}
	return &ConvertResult{PDFBase64: base64.StdEncoding.EncodeToString(pdf)}, nil
}

// assemblePDF places each JPEG on its own page sized to the image.
func assemblePDF(images [][]byte) ([]byte, error) {
	readers := make([]io.Reader, len(images))
	for i, img := range images {
		readers[i] = bytes.NewReader(img)
	}
	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, readers, nil, model.NewDefaultConfiguration()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *ConversionService) pdfToImage(ctx context.Context, userID string, asset *models.Asset, req ConvertRequest) (*ConvertResult, error) {
	if asset.ResourceType != common.ResourceImage || !pdfPageOut[req.TargetFormat] {
		return nil, errNoResult
	}
	// compressed PDFs live in the artifact store, where pages cannot be rasterized
	if asset.Storage != "" {
		return nil, common.BadRequest("convert", "Compressed PDF cannot be rasterized; convert the original upload")
	}
	density := DefaultDensity
	if req.Density != nil && *req.Density != 0 {
		density = common.ClampInt(*req.Density, MinDensity, MaxDensity)
	}

	pageCount, err := s.pageCount(ctx, asset.PublicID)
	if err != nil {
		return nil, common.BadRequest("convert", err.Error())
	}

	urls := make([]string, 0, pageCount)
	for pg := 1; pg <= pageCount; pg++ {
		urls = append(urls, s.backend.DeliveryURL(common.ResourceImage, asset.PublicID, req.TargetFormat,
			transform.Chain{{Density: density}, {Page: pg}, {Quality: transform.QualityAuto}}))
	}

	options := datatypes.JSONMap{"density": density, "pageCount": pageCount}
	if err := s.record(ctx, userID, asset.ID, req.Kind, req.TargetFormat, options, fmt.Sprintf("%d pages", pageCount)); err != nil {
		return nil, err
	}
	return &ConvertResult{PageURLs: urls, PageCount: pageCount}, nil
}

// pageCount asks the Admin API first and counts pages of the fetched PDF
// when that fails.
func (s *ConversionService) pageCount(ctx context.Context, publicID string) (int, error) {
	res, err := s.backend.Resource(ctx, common.ResourceImage, publicID)
	if err == nil && res.Pages > 0 {
		return res.Pages, nil
	}
	if err != nil {
		s.log.Debug().Err(err).Str("public_id", publicID).Msg("admin page lookup failed, counting locally")
	}

	data, err := s.backend.Fetch(ctx, s.backend.DeliveryURL(common.ResourceImage, publicID, common.FormatPDF, nil))
	if err != nil {
		return 0, fmt.Errorf("Failed to fetch PDF: %w", err)
	}
	n, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("Failed to determine PDF page count: %w", err)
	}
	return n, nil
}

func (s *ConversionService) videoToAudio(ctx context.Context, userID string, asset *models.Asset, req ConvertRequest) (*ConvertResult, error) {
	if asset.ResourceType != common.ResourceVideo || !videoOut[req.TargetFormat] {
		return nil, errNoResult
	}

	options := datatypes.JSONMap{}
	chain := transform.Chain{{Quality: transform.QualityAuto}}
	if req.AudioFrequency != "" {
		options["audioFrequency"] = req.AudioFrequency
		chain = append(chain, transform.Step{AudioFrequency: req.AudioFrequency})
	}

	url := s.backend.DeliveryURL(common.ResourceVideo, asset.PublicID, req.TargetFormat, chain)
	if err := s.record(ctx, userID, asset.ID, req.Kind, req.TargetFormat, options, url); err != nil {
		return nil, err
	}
	return &ConvertResult{ResultURL: url}, nil
}

func (s *ConversionService) record(ctx context.Context, userID, assetID, kind, format string, options datatypes.JSONMap, resultURL string) error {
	err := s.db.CreateConversion(ctx, &models.Conversion{
		UserID:       userID,
		AssetID:      assetID,
		Kind:         kind,
		TargetFormat: format,
		Options:      options,
		ResultURL:    resultURL,
	})
	if err != nil {
		return common.Internal("convert", err)
	}
	s.log.Info().Str("asset_id", assetID).Str("kind", kind).Str("format", format).Msg("conversion recorded")
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
