package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"cloudmedia/internal/models"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(Config{DSN: filepath.Join(t.TempDir(), "test.sqlite3")})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background(), zerolog.Nop()))
	t.Cleanup(func() { db.Close() })
	return db
}

func newAsset(userID, kind, format string, created time.Time) *models.Asset {
	return &models.Asset{
		UserID:         userID,
		PublicID:       "cloudmedia/" + userID + "/" + format,
		ResourceType:   kind,
		OriginalFormat: format,
		Bytes:          1000,
		CreatedAt:      created,
	}
}

func TestIsPostgres(t *testing.T) {
	assert.True(t, isPostgres("postgres://u:p@db:5432/media"))
	assert.True(t, isPostgres("host=db user=u dbname=media"))
	assert.False(t, isPostgres("cloudmedia.sqlite3"))
	assert.False(t, isPostgres("file::memory:?cache=shared"))
}

func TestFindAssetScopedToOwner(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	asset := newAsset("alice", "image", "png", time.Now())
	require.NoError(t, db.CreateAsset(ctx, asset))
	require.NotEmpty(t, asset.ID)

	got, err := db.FindAsset(ctx, asset.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "png", got.OriginalFormat)

	foreign, err := db.FindAsset(ctx, asset.ID, "bob")
	require.NoError(t, err)
	assert.Nil(t, foreign)

	missing, err := db.FindAsset(ctx, "nope", "alice")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindAssetsOrderedAndFiltered(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	base := time.Now().Add(-time.Hour)
	second := newAsset("alice", "image", "jpg", base.Add(2*time.Minute))
	first := newAsset("alice", "image", "png", base.Add(time.Minute))
	video := newAsset("alice", "video", "mp4", base)
	other := newAsset("bob", "image", "png", base)
	for _, a := range []*models.Asset{second, first, video, other} {
		require.NoError(t, db.CreateAsset(ctx, a))
	}

	got, err := db.FindAssets(ctx, []string{second.ID, first.ID, video.ID, other.ID}, "alice", "image")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)

	none, err := db.FindAssets(ctx, nil, "alice", "image")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListConversionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	asset := newAsset("alice", "image", "png", time.Now())
	require.NoError(t, db.CreateAsset(ctx, asset))

	older := &models.Conversion{
		UserID: "alice", AssetID: asset.ID, Kind: "compress", TargetFormat: "png",
		Options:   datatypes.JSONMap{"mode": "best_quality"},
		CreatedAt: time.Now().Add(-time.Minute),
	}
	newer := &models.Conversion{
		UserID: "alice", AssetID: asset.ID, Kind: "compress", TargetFormat: "png",
		Options:   datatypes.JSONMap{"mode": "target_size", "targetBytes": 51200},
		CreatedAt: time.Now(),
	}
	convert := &models.Conversion{UserID: "alice", AssetID: asset.ID, Kind: "image_format", TargetFormat: "webp"}
	for _, c := range []*models.Conversion{older, newer, convert} {
		require.NoError(t, db.CreateConversion(ctx, c))
	}

	rows, err := db.ListConversions(ctx, "alice", "compress")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, newer.ID, rows[0].ID)
	assert.Equal(t, "target_size", rows[0].Options["mode"])
	require.NotNil(t, rows[0].Asset)
	assert.Equal(t, asset.PublicID, rows[0].Asset.PublicID)
	assert.Equal(t, int64(1000), rows[0].Asset.Bytes)

	empty, err := db.ListConversions(ctx, "bob", "compress")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	asset := newAsset("alice", "image", "pdf", time.Now())
	require.NoError(t, db.CreateAsset(ctx, asset))

	err := db.Transaction(ctx, func(tx *Database) error {
		asset.Bytes = 10
		if err := tx.UpdateAsset(ctx, asset); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	got, err := db.FindAsset(ctx, asset.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Bytes)
}
