package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"cloudmedia/internal/compression"
	"cloudmedia/internal/database"
	"cloudmedia/internal/models"
	"cloudmedia/internal/storage"
	"cloudmedia/internal/transform"
)

// fakeBackend records calls and serves fetches from fetchFn.
type fakeBackend struct {
	mu sync.Mutex

	fetchFn     func(url string) ([]byte, error)
	resource    *transform.Resource
	resourceErr error
	uploadRes   *transform.UploadResult

	uploads   []transform.UploadParams
	explicits []string
	fetches   []string
	calls     int
}

func (f *fakeBackend) Upload(_ context.Context, p transform.UploadParams) (*transform.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.uploads = append(f.uploads, p)
	if f.uploadRes != nil {
		return f.uploadRes, nil
	}
	publicID := p.PublicID
	if publicID == "" {
		publicID = p.Folder + "/" + p.Filename
	}
	return &transform.UploadResult{
		PublicID:     publicID,
		ResourceType: p.ResourceType,
		Bytes:        int64(len(p.Data)),
		SecureURL:    "https://res.test/" + publicID,
	}, nil
}

func (f *fakeBackend) Explicit(_ context.Context, publicID, resourceType string, chain transform.Chain, format string) (*transform.EagerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	eager := chain.Eager(format)
	f.explicits = append(f.explicits, eager)
	return &transform.EagerResult{
		Transformation: eager,
		Format:         format,
		SecureURL:      fmt.Sprintf("https://res.test/%s/upload/%s/%s.%s", resourceType, chain, publicID, format),
	}, nil
}

func (f *fakeBackend) Resource(_ context.Context, _, _ string) (*transform.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.resourceErr != nil {
		return nil, f.resourceErr
	}
	if f.resource == nil {
		return &transform.Resource{}, nil
	}
	return f.resource, nil
}

func (f *fakeBackend) DeliveryURL(resourceType, publicID, format string, chain transform.Chain) string {
	url := "https://res.test/" + resourceType + "/upload/"
	if t := chain.String(); t != "" {
		url += t + "/"
	}
	url += publicID
	if format != "" {
		url += "." + format
	}
	return url
}

func (f *fakeBackend) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.fetches = append(f.fetches, url)
	fn := f.fetchFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("no fetch configured")
	}
	return fn(url)
}

// fakeRenderer produces PDFs whose size grows linearly with DPI.
type fakeRenderer struct {
	perDPI int
	preset []byte
	calls  int
}

func (r *fakeRenderer) RenderAt(_ context.Context, _ []byte, dpi, _ int) ([]byte, error) {
	r.calls++
	return fakePDF(r.perDPI * dpi), nil
}

func (r *fakeRenderer) RenderPreset(_ context.Context, _ []byte, _ string) ([]byte, error) {
	r.calls++
	return r.preset, nil
}

func (r *fakeRenderer) Search(ctx context.Context, pdf []byte, targetBytes int64) (compression.SearchResult, error) {
	render := func(ctx context.Context, dpi, q int) ([]byte, error) {
		return r.RenderAt(ctx, pdf, dpi, q)
	}
	res, err := compression.SearchDPI(ctx, render, compression.DefaultDPIRange(), targetBytes, compression.MaxSearchIterations)
	if err != nil {
		return compression.SearchResult{}, err
	}
	return compression.PreferOriginal(res, pdf), nil
}

type memStore struct {
	objects map[string][]byte
}

func (m *memStore) Name() string { return "memory" }

func (m *memStore) Put(_ context.Context, key string, data []byte, _ string) (*storage.Object, error) {
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return &storage.Object{Key: key, URL: "mem://" + key, Bytes: int64(len(data))}, nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrFileNotFound
	}
	return data, nil
}

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.Open(database.Config{DSN: filepath.Join(t.TempDir(), "services.sqlite3")})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background(), zerolog.Nop()))
	t.Cleanup(func() { db.Close() })
	return db
}

func createAsset(t *testing.T, db *database.Database, asset *models.Asset) *models.Asset {
	t.Helper()
	if asset.UserID == "" {
		asset.UserID = "alice"
	}
	require.NoError(t, db.CreateAsset(context.Background(), asset))
	return asset
}

// fakePDF returns n bytes that sniff as a PDF.
func fakePDF(n int) []byte {
	header := []byte("%PDF-1.7\n")
	if n < len(header) {
		n = len(header)
	}
	return append(header, bytes.Repeat([]byte("x"), n-len(header))...)
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

func ptr[T any](v T) *T { return &v }

func hasFetch(b *fakeBackend, substr string) bool {
	for _, u := range b.fetches {
		if strings.Contains(u, substr) {
			return true
		}
	}
	return false
}
