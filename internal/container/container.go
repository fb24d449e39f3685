package container

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/rs/zerolog"

	"cloudmedia/internal/compression"
	"cloudmedia/internal/config"
	"cloudmedia/internal/database"
	"cloudmedia/internal/services"
	"cloudmedia/internal/storage"
	"cloudmedia/internal/transform"
	"cloudmedia/internal/transport"
)

// Container holds all dependencies for the application
type Container struct {
	Config *config.Config
	Log    zerolog.Logger

	DB        *database.Database
	Backend   *transform.Client
	Renderer  *compression.Runner
	Store     storage.Store
	Validator *transport.Validator

	Assets      *services.AssetService
	Compression *services.CompressionService
	Conversion  *services.ConversionService
	History     *services.HistoryService
}

// New wires the service graph. The database is opened and migrated here.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	if err := cfg.ValidateTransform(); err != nil {
		return nil, err
	}

	db, err := OpenDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	c := &Container{Config: cfg, Log: log, DB: db}
	if err := c.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// OpenDatabase connects and migrates the schema.
func OpenDatabase(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*database.Database, error) {
	db, err := database.Open(database.Config{
		DSN:             cfg.DatabaseDSN,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, log); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewRenderer builds the Ghostscript runner, extracting GS_BUNDLE first when
// one is configured.
func NewRenderer(cfg *config.Config, log zerolog.Logger) (*compression.Runner, error) {
	binary := cfg.GSBinary
	if cfg.GSBundle != "" {
		path, err := compression.PrepareBundle(cfg.GSBundle, filepath.Join(cfg.WorkDir, "ghostscript-bundle"), log)
		if err != nil {
			return nil, fmt.Errorf("prepare ghostscript bundle: %w", err)
		}
		binary = path
	}
	runner := compression.NewRunner(compression.RunnerConfig{
		Binary:  binary,
		WorkDir: cfg.WorkDir,
		Timeout: cfg.GSTimeout,
		Range:   compression.DefaultDPIRange(),
	}, log)
	if !runner.IsAvailable() {
		log.Warn().Msg("ghostscript not found; PDF compression will fail until GS_BINARY is set")
	}
	return runner, nil
}

func (c *Container) init(ctx context.Context) error {
	cfg := c.Config

	c.Backend = transform.NewClient(transform.Config{
		CloudName:       cfg.CloudName,
		APIKey:          cfg.CloudAPIKey,
		APISecret:       cfg.CloudAPISecret,
		APIBaseURL:      cfg.CloudAPIBaseURL,
		DeliveryBaseURL: cfg.CloudDeliveryURL,
		Timeout:         cfg.TransformTimeout,
		MaxFetchBytes:   cfg.MaxFetchBytes,
	}, c.Log)

	renderer, err := NewRenderer(cfg, c.Log)
	if err != nil {
		return err
	}
	c.Renderer = renderer

	store, err := storage.New(ctx, cfg, c.Backend, c.Log)
	if err != nil {
		return fmt.Errorf("init artifact store: %w", err)
	}
	c.Store = store

	validator, err := transport.NewValidator(ctx, cfg, c.Log)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}
	c.Validator = validator

	c.Assets = services.NewAssetService(c.DB, c.Backend, cfg.MaxUploadBytes, c.Log)
	c.Compression = services.NewCompressionService(c.DB, c.Backend, c.Renderer, c.Store, c.Log)
	c.Conversion = services.NewConversionService(c.DB, c.Backend, c.Log)
	c.History = services.NewHistoryService(c.DB)
	return nil
}

// Server builds the HTTP server over the wired services.
func (c *Container) Server() *transport.HttpServer {
	allowed := append([]string{}, c.Config.DownloadAllowedHosts...)
	h := &transport.Handlers{
		Assets:   c.Assets,
		Compress: c.Compression,
		Convert:  c.Conversion,
		History:  c.History,
		Ready:    c.ready,
	}
	if local, ok := c.Store.(*storage.LocalStorage); ok {
		h.Files = local
		if host := localHost(c.Config.LocalStorageBaseURL); host != "" {
			allowed = append(allowed, host)
		}
	}
	h.Download = transport.NewDownloadProxy(allowed, c.Config.TransformTimeout, c.Log)
	return transport.New(c.Config, c.Log, h, c.Validator)
}

type healthChecker interface {
	Health(ctx context.Context) error
}

func (c *Container) ready(ctx context.Context) error {
	if err := c.DB.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if hc, ok := c.Store.(healthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			return fmt.Errorf("artifact store: %w", err)
		}
	}
	return nil
}

// Close releases the database and background auth refresh.
func (c *Container) Close() error {
	c.Validator.Close()
	return c.DB.Close()
}

func localHost(baseURL string) string {
	if baseURL == "" {
		return "localhost"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
