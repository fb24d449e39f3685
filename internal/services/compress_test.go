package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmedia/internal/common"
	"cloudmedia/internal/compression"
	"cloudmedia/internal/models"
	"cloudmedia/internal/transform"
)

func TestCompressRejectsTargetNotSmaller(t *testing.T) {
	db := setupTestDB(t)
	backend := &fakeBackend{}
	renderer := &fakeRenderer{perDPI: 400}
	svc := NewCompressionService(db, backend, renderer, &memStore{}, zerolog.Nop())

	asset := createAsset(t, db, &models.Asset{
		PublicID: "cloudmedia/alice/photo", ResourceType: common.ResourceImage,
		OriginalFormat: "png", Bytes: 100_000,
	})

	_, err := svc.Compress(context.Background(), "alice", CompressRequest{AssetID: asset.ID, TargetMB: ptr(1.0)})
	require.Error(t, err)
	assert.Equal(t, common.KindBadRequest, common.KindOf(err))
	assert.Equal(t, "Target size must be smaller than the original file size", common.MessageOf(err))
	assert.Zero(t, backend.calls)
	assert.Zero(t, renderer.calls)
}

func TestCompressForeignAssetNotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := NewCompressionService(db, &fakeBackend{}, &fakeRenderer{}, &memStore{}, zerolog.Nop())

	asset := createAsset(t, db, &models.Asset{
		PublicID: "cloudmedia/alice/photo", ResourceType: common.ResourceImage,
		OriginalFormat: "png", Bytes: 100_000,
	})

	_, err := svc.Compress(context.Background(), "bob", CompressRequest{AssetID: asset.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	_, err = svc.Compress(context.Background(), "alice", CompressRequest{})
	assert.Equal(t, common.KindBadRequest, common.KindOf(err))
}

func TestCompressPDFTargetSize(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := &memStore{}
	renderer := &fakeRenderer{perDPI: 400}
	svc := NewCompressionService(db, &fakeBackend{}, renderer, store, zerolog.Nop())

	original := fakePDF(100_000)
	asset := createAsset(t, db, &models.Asset{
		PublicID: "cloudmedia/alice/report", ResourceType: common.ResourceImage,
		OriginalFormat: "pdf", Bytes: int64(len(original)),
	})

	res, err := svc.Compress(ctx, "alice", CompressRequest{AssetID: asset.ID, TargetKB: ptr(60.0), PDF: original})
	require.NoError(t, err)

	target := int64(60 * common.KB)
	require.NotNil(t, res.TargetBytes)
	assert.Equal(t, target, *res.TargetBytes)
	assert.LessOrEqual(t, res.Bytes, target)
	assert.Empty(t, res.Warning)
	assert.Equal(t, "pdf", res.Format)
	assert.Equal(t, int64(len(original)), res.OriginalBytes)
	assert.LessOrEqual(t, renderer.calls, 2+compression.MaxSearchIterations)

	decoded, err := base64.StdEncoding.DecodeString(res.PDFBase64)
	require.NoError(t, err)
	assert.Equal(t, res.Bytes, int64(len(decoded)))

	key := "cloudmedia/alice/report_compressed.pdf"
	assert.Contains(t, store.objects, key)
	assert.Equal(t, "mem://"+key, res.ResultURL)

	updated, err := db.FindAsset(ctx, asset.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, key, updated.PublicID)
	assert.Equal(t, res.Bytes, updated.Bytes)

	rows, err := NewHistoryService(db).ListCompressions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	opts := rows[0].Options
	assert.Equal(t, models.ModeTargetSize, opts[models.OptMode])
	assert.EqualValues(t, updated.Bytes, opts[models.OptAchieved])
	assert.EqualValues(t, len(original), opts[models.OptOriginalBytes])
	assert.EqualValues(t, target, opts[models.OptTargetBytes])
	require.NotNil(t, rows[0].Asset)
	assert.Equal(t, key, rows[0].Asset.PublicID)
}

func TestCompressPDFTwiceReadsStoredArtifact(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := &memStore{}
	original := fakePDF(200_000)
	backend := &fakeBackend{fetchFn: func(url string) ([]byte, error) {
		if url == "https://res.test/image/upload/cloudmedia/alice/report.pdf" {
			return original, nil
		}
		return nil, common.NewError(common.KindBackend, "fetch", "Failed to fetch file (HTTP 404)", nil)
	}}
	svc := NewCompressionService(db, backend, &fakeRenderer{perDPI: 400}, store, zerolog.Nop())

	asset := createAsset(t, db, &models.Asset{
		PublicID: "cloudmedia/alice/report", ResourceType: common.ResourceImage,
		OriginalFormat: "pdf", Bytes: int64(len(original)),
	})

	first, err := svc.Compress(ctx, "alice", CompressRequest{AssetID: asset.ID, TargetKB: ptr(100.0)})
	require.NoError(t, err)

	key := "cloudmedia/alice/report_compressed.pdf"
	updated, err := db.FindAsset(ctx, asset.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, key, updated.PublicID)
	assert.Equal(t, "memory", updated.Storage)

	second, err := svc.Compress(ctx, "alice", CompressRequest{AssetID: asset.ID, TargetKB: ptr(60.0)})
	require.NoError(t, err)
	assert.Less(t, second.Bytes, first.Bytes)
	assert.Equal(t, first.Bytes, second.OriginalBytes)

	// the second run overwrites the same artifact and never goes back to the backend
	assert.Len(t, store.objects, 1)
	assert.Equal(t, store.objects[key], mustDecode(t, second.PDFBase64))
	assert.Equal(t, []string{"https://res.test/image/upload/cloudmedia/alice/report.pdf"}, backend.fetches)
}

func TestCompressPDFStoredInOtherBackend(t *testing.T) {
	db := setupTestDB(t)
	backend := &fakeBackend{}
	svc := NewCompressionService(db, backend, &fakeRenderer{perDPI: 400}, &memStore{}, zerolog.Nop())

	asset := createAsset(t, db, &models.Asset{
		PublicID: "cloudmedia/alice/report_compressed.pdf", ResourceType: common.ResourceImage,
		OriginalFormat: "pdf", Bytes: 200_000, Storage: "s3",
	})

	_, err := svc.Compress(context.Background(), "alice", CompressRequest{AssetID: asset.ID, TargetKB: ptr(60.0)})
	require.Error(t, err)
	assert.Equal(t, common.KindBadRequest, common.KindOf(err))
	assert.Equal(t, "PDF file is required for PDF compression", common.MessageOf(err))
	assert.Zero(t, backend.calls)
}

func TestArtifactKey(t *testing.T) {
	assert.Equal(t, "cloudmedia/alice/report_compressed.pdf", artifactKey("cloudmedia/alice/report"))
	assert.Equal(t, "cloudmedia/alice/report_compressed.pdf", artifactKey("cloudmedia/alice/report_compressed.pdf"))
	assert.Equal(t, "cloudmedia/alice/report_compressed.pdf", artifactKey("cloudmedia/alice/report_compressed"))
}

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	return data
}

func TestCompressPDFUnreachableTarget(t *testing.T) {
	db := setupTestDB(t)
	svc := NewCompressionService(db, &fakeBackend{}, &fakeRenderer{perDPI: 5_000}, &memStore{}, zerolog.Nop())

	original := fakePDF(2_000_000)
	asset := createAsset(t, db, &models.Asset{
		PublicID: "cloudmedia/alice/scan", ResourceType: common.ResourceImage,
		OriginalFormat: "pdf", Bytes: int64(len(original)),
	})

	res, err := svc.Compress(context.Background(), "alice", CompressRequest{AssetID: asset.ID, TargetKB: ptr(50.0), PDF: original})
	require.NoError(t, err)
	assert.Equal(t, compression.WarnMaxCompression, res.Warning)
	assert.Equal(t, int64(5_000*20), res.Bytes)
}

func TestCompressPDFBestQualityKeepsOriginal(t *testing.T) {
	db := setupTestDB(t)
	original := fakePDF(80_000)
	renderer := &fakeRenderer{preset: fakePDF(90_000)}
	backend := &fakeBackend{fetchFn: func(string) ([]byte, error) { return original, nil }}
	svc := NewCompressionService(db, backend, renderer, &memStore{}, zerolog.Nop())

	asset := createAsset(t, db, &models.Asset{
		PublicID: "cloudmedia/alice/tiny", ResourceType: common.ResourceImage,
		OriginalFormat: "pdf", Bytes: int64(len(original)),
	})

	res, err := svc.Compress(context.Background(), "alice", CompressRequest{AssetID: asset.ID})
	require.NoError(t, err)
	assert.Equal(t, compression.WarnAlreadyCompressed, res.Warning)
	assert.Equal(t, int64(len(original)), res.Bytes)
	assert.Nil(t, res.TargetBytes)
	assert.True(t, hasFetch(backend, "cloudmedia/alice/tiny.pdf"))
}

func TestCompressPDFRejectsNonPDFUpload(t *testing.T) {
	db := setupTestDB(t)
	svc := NewCompressionService(db, &fakeBackend{}, &fakeRenderer{perDPI: 100}, &memStore{}, zerolog.Nop())

	asset := createAsset(t, db, &models.Asset{
		PublicID: "cloudmedia/alice/doc", ResourceType: common.ResourceImage,
		OriginalFormat: "pdf", Bytes: 100_000,
	})

	_, err := svc.Compress(context.Background(), "alice", CompressRequest{
		AssetID: asset.ID, TargetKB: ptr(60.0), PDF: []byte("definitely not a pdf"),
	})
	require.Error(t, err)
	assert.Equal(t, common.KindBadRequest, common.KindOf(err))
}

func TestCompressVideoTargetSize(t *testing.T) {
	db := setupTestDB(t)
	backend := &fakeBackend{
		resource: &transform.Resource{Duration: ptr(60.0)},
		fetchFn:  func(string) ([]byte, error) { return make([]byte, 4_000), nil },
	}
	svc := NewCompressionService(db, backend, &fakeRenderer{}, &memStore{}, zerolog.Nop())

	asset := createAsset(t, db, &models.Asset{
		PublicID: "cloudmedia/alice/clip", ResourceType: common.ResourceVideo,
		OriginalFormat: "mov", Bytes: 50 * common.MB,
	})

	res, err := svc.Compress(context.Background(), "alice", CompressRequest{AssetID: asset.ID, TargetMB: ptr(10.0)})
	require.NoError(t, err)
	require.Len(t, backend.explicits, 1)
	assert.Equal(t, "br_1398k,q_auto/mov", backend.explicits[0])
	assert.Empty(t, res.Warning)
	assert.Equal(t, int64(4_000), res.Bytes)

	require.Len(t, backend.uploads, 1)
	assert.True(t, backend.uploads[0].Overwrite)
	assert.Equal(t, "cloudmedia/alice/clip", backend.uploads[0].PublicID)
}

func TestCompressVideoMissingDuration(t *testing.T) {
	db := setupTestDB(t)
	backend := &fakeBackend{resourceErr: errors.New("admin api down")}
	svc := NewCompressionService(db, backend, &fakeRenderer{}, &memStore{}, zerolog.Nop())

	asset := createAsset(t, db, &models.Asset{
		PublicID: "cloudmedia/alice/clip", ResourceType: common.ResourceVideo,
		OriginalFormat: "mp4", Bytes: 50 * common.MB,
	})

	_, err := svc.Compress(context.Background(), "alice", CompressRequest{AssetID: asset.ID, TargetMB: ptr(10.0)})
	require.Error(t, err)
	assert.Equal(t, common.KindBadRequest, common.KindOf(err))
	assert.ErrorIs(t, err, compression.ErrMissingDuration)
	assert.Empty(t, backend.explicits)
}

func TestCompressImageLadder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	sizes := map[string]int{"q_80": 150_000, "q_60": 100_000, "q_45": 70_000, "q_30": 50_000, "q_20": 30_000}
	backend := &fakeBackend{fetchFn: func(url string) ([]byte, error) {
		for k, n := range sizes {
			if strings.Contains(url, "/"+k+"/") {
				return make([]byte, n), nil
			}
		}
		return nil, errors.New("unexpected url " + url)
	}}
	svc := NewCompressionService(db, backend, &fakeRenderer{}, &memStore{}, zerolog.Nop())

	asset := createAsset(t, db, &models.Asset{
		PublicID: "cloudmedia/alice/photo", ResourceType: common.ResourceImage,
		OriginalFormat: "png", Bytes: 200_000,
	})

	res, err := svc.Compress(ctx, "alice", CompressRequest{AssetID: asset.ID, TargetKB: ptr(60.0)})
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), res.Bytes)
	assert.Empty(t, res.Warning)
	assert.Len(t, backend.fetches, 4)
	assert.False(t, hasFetch(backend, "q_20"))

	require.Len(t, backend.uploads, 1)
	assert.Len(t, backend.uploads[0].Data, 50_000)

	rows, err := db.ListConversions(ctx, "alice", common.KindCompress)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	applied, ok := rows[0].Options[models.OptApplied].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 30, applied["quality"])
}

func TestCompressImageLadderBestEffort(t *testing.T) {
	db := setupTestDB(t)
	backend := &fakeBackend{fetchFn: func(string) ([]byte, error) { return make([]byte, 90_000), nil }}
	svc := NewCompressionService(db, backend, &fakeRenderer{}, &memStore{}, zerolog.Nop())

	asset := createAsset(t, db, &models.Asset{
		PublicID: "cloudmedia/alice/noise", ResourceType: common.ResourceImage,
		OriginalFormat: "jpg", Bytes: 200_000,
	})

	res, err := svc.Compress(context.Background(), "alice", CompressRequest{AssetID: asset.ID, TargetKB: ptr(60.0)})
	require.NoError(t, err)
	assert.Equal(t, compression.WarnBestEffort, res.Warning)
	assert.Len(t, backend.fetches, len(compression.DefaultQualityLadder))
}
