package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"cloudmedia/internal/config"
)

var (
	errLocalStorageDisabled = errors.New("local storage is not configured; set LOCAL_STORAGE_PATH to enable")
	ErrFileNotFound         = errors.New("file not found")
	ErrInvalidKey           = errors.New("invalid storage key")
)

// LocalStorage keeps artifacts on the local filesystem. They are served back
// through the /v1/files route.
type LocalStorage struct {
	basePath string
	baseURL  string
	log      zerolog.Logger
	disabled bool
}

// NewLocalStorage creates a new local filesystem storage backend.
func NewLocalStorage(cfg *config.Config, log zerolog.Logger) (*LocalStorage, error) {
	logger := log.With().Str("component", "local-storage").Logger()

	basePath := strings.TrimSpace(cfg.LocalStoragePath)
	if basePath == "" {
		logger.Warn().Msg("LOCAL_STORAGE_PATH is not set; local storage will be disabled")
		return &LocalStorage{log: logger, disabled: true}, nil
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory: %w", err)
	}

	baseURL := strings.TrimSpace(cfg.LocalStorageBaseURL)
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d/v1/files", cfg.HTTPPort)
	}

	storage := &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		log:      logger,
	}
	logger.Info().Str("path", basePath).Str("base_url", storage.baseURL).Msg("local storage initialized")
	return storage, nil
}

func (l *LocalStorage) Name() string { return "local" }

func (l *LocalStorage) resolve(key string) (string, error) {
	if l.disabled {
		return "", errLocalStorageDisabled
	}
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", ErrInvalidKey
	}
	return filepath.Join(l.basePath, clean), nil
}

// Put writes data under key.
func (l *LocalStorage) Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	fullPath, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	l.log.Debug().Str("key", key).Int("bytes", len(data)).Msg("file stored in local storage")
	return &Object{
		Key:   key,
		URL:   l.baseURL + "/" + filepath.ToSlash(strings.TrimPrefix(key, "/")),
		Bytes: int64(len(data)),
	}, nil
}

// Open reads a stored file and sniffs its content type.
func (l *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	fullPath, err := l.resolve(key)
	if err != nil {
		return nil, "", err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		file.Close()
		return nil, "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, "", err
	}
	return file, mtype.String(), nil
}

// Get reads the whole file stored under key.
func (l *LocalStorage) Get(ctx context.Context, key string) ([]byte, error) {
	fullPath, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Health checks if the storage directory is accessible.
func (l *LocalStorage) Health(ctx context.Context) error {
	if l.disabled {
		return nil
	}
	testFile := filepath.Join(l.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0644); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}
