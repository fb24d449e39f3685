package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"cloudmedia/internal/models"
	"cloudmedia/internal/services"
	"cloudmedia/internal/storage"
)

type AssetUploader interface {
	Upload(ctx context.Context, userID string, req services.UploadRequest) (*services.AssetResponse, error)
}

type Compressor interface {
	Compress(ctx context.Context, userID string, req services.CompressRequest) (*services.CompressResult, error)
}

type Converter interface {
	Convert(ctx context.Context, userID string, req services.ConvertRequest) (*services.ConvertResult, error)
}

type HistoryLister interface {
	ListCompressions(ctx context.Context, userID string) ([]models.Conversion, error)
}

type FileOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// Handlers groups the HTTP endpoints. Files and Ready are optional.
type Handlers struct {
	Assets   AssetUploader
	Compress Compressor
	Convert  Converter
	History  HistoryLister
	Download *DownloadProxy
	Files    FileOpener
	Ready    func(ctx context.Context) error
}

// UploadAsset handles POST /v1/assets.
func (h *Handlers) UploadAsset(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "Missing file")
		return
	}
	data, err := readFormFile(fh)
	if err != nil {
		badRequest(c, "Bad request")
		return
	}

	res, err := h.Assets.Upload(c.Request.Context(), userID(c), services.UploadRequest{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type compressBody struct {
	AssetID  string   `json:"assetId"`
	TargetKB *float64 `json:"targetKb"`
	TargetMB *float64 `json:"targetMb"`
}

// CompressAsset handles POST /v1/compress. PDFs arrive as multipart with the
// raw file; everything else is JSON.
func (h *Handlers) CompressAsset(c *gin.Context) {
	var req services.CompressRequest

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		req.AssetID = c.PostForm("assetId")
		req.TargetKB = formFloat(c.PostForm("targetKb"))
		req.TargetMB = formFloat(c.PostForm("targetMb"))
		if fh, err := c.FormFile("file"); err == nil {
			data, err := readFormFile(fh)
			if err != nil {
				badRequest(c, "Bad request")
				return
			}
			req.PDF = data
		} else if !errors.Is(err, http.ErrMissingFile) {
			badRequest(c, "Bad request")
			return
		}
	} else {
		var body compressBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "Bad request")
			return
		}
		req.AssetID = body.AssetID
		req.TargetKB = body.TargetKB
		req.TargetMB = body.TargetMB
	}

	if req.AssetID == "" {
		badRequest(c, "Bad request")
		return
	}

	res, err := h.Compress.Compress(c.Request.Context(), userID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type convertBody struct {
	Kind           string          `json:"kind"`
	AssetID        string          `json:"assetId"`
	AssetIDs       []string        `json:"assetIds"`
	TargetFormat   string          `json:"targetFormat"`
	Quality        json.RawMessage `json:"quality"`
	Density        *float64        `json:"density"`
	AudioFrequency string          `json:"audioFrequency"`
	AudioBitrate   string          `json:"audioBitrate"`
}

// ConvertAsset handles POST /v1/convert.
func (h *Handlers) ConvertAsset(c *gin.Context) {
	var body convertBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Kind == "" {
		badRequest(c, "Bad request")
		return
	}

	req := services.ConvertRequest{
		Kind:           body.Kind,
		AssetID:        body.AssetID,
		AssetIDs:       body.AssetIDs,
		TargetFormat:   strings.ToLower(strings.TrimSpace(body.TargetFormat)),
		Quality:        rawQuality(body.Quality),
		AudioFrequency: body.AudioFrequency,
	}
	if req.AudioFrequency == "" {
		req.AudioFrequency = body.AudioBitrate
	}
	if body.Density != nil {
		d := int(math.Round(*body.Density))
		req.Density = &d
	}

	res, err := h.Convert.Convert(c.Request.Context(), userID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListCompressions handles GET /v1/compressions.
func (h *Handlers) ListCompressions(c *gin.Context) {
	rows, err := h.History.ListCompressions(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if rows == nil {
		rows = []models.Conversion{}
	}
	c.JSON(http.StatusOK, rows)
}

// ServeFile handles GET /v1/files/*path for locally stored artifacts.
func (h *Handlers) ServeFile(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("path"), "/")
	rc, contentType, err := h.Files.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		respondError(c, err)
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// formFloat parses an optional numeric form value; unparsable values count
// as absent.
func formFloat(v string) *float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) {
		return nil
	}
	return &f
}

// rawQuality accepts "auto", "70" or 70.
func rawQuality(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.Itoa(int(math.Round(f)))
	}
	return ""
}
