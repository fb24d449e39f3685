package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/docker/go-units"
	"github.com/joho/godotenv"
)

// Config holds the environment driven configuration for the service.
type Config struct {
	// Service
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"cloudmedia"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Database. A postgres:// DSN selects postgres, anything else is a sqlite path.
	DatabaseDSN    string        `env:"DATABASE_DSN"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Transform backend (Cloudinary REST API)
	CloudName        string        `env:"CLOUDINARY_CLOUD_NAME"`
	CloudAPIKey      string        `env:"CLOUDINARY_API_KEY"`
	CloudAPISecret   string        `env:"CLOUDINARY_API_SECRET"`
	CloudAPIBaseURL  string        `env:"CLOUDINARY_API_BASE_URL" envDefault:"https://api.cloudinary.com"`
	CloudDeliveryURL string        `env:"CLOUDINARY_DELIVERY_BASE_URL" envDefault:"https://res.cloudinary.com"`
	TransformTimeout time.Duration `env:"TRANSFORM_TIMEOUT" envDefault:"5m"`

	// Ghostscript
	GSBinary  string        `env:"GS_BINARY"`
	GSBundle  string        `env:"GS_BUNDLE"` // optional tar.gz holding ghostscript/bin/gs
	GSTimeout time.Duration `env:"GS_TIMEOUT" envDefault:"120s"`
	WorkDir   string        `env:"WORK_DIR"`

	// Artifact store for compressed PDFs: "cloudinary", "s3" or "local"
	ArtifactBackend string `env:"ARTIFACT_BACKEND" envDefault:"cloudinary"`

	LocalStoragePath    string `env:"LOCAL_STORAGE_PATH" envDefault:"./data/files"`
	LocalStorageBaseURL string `env:"LOCAL_STORAGE_BASE_URL"`

	S3Endpoint       string        `env:"S3_ENDPOINT"`
	S3PublicEndpoint string        `env:"S3_PUBLIC_ENDPOINT"`
	S3Region         string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket         string        `env:"S3_BUCKET"`
	S3AccessKeyID    string        `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey      string        `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle   bool          `env:"S3_USE_PATH_STYLE" envDefault:"true"`
	S3PresignTTL     time.Duration `env:"S3_PRESIGN_TTL" envDefault:"168h"`

	// Authentication
	AuthEnabled  bool   `env:"AUTH_ENABLED" envDefault:"false"`
	AuthIssuer   string `env:"AUTH_ISSUER"`
	AuthJWKSURL  string `env:"AUTH_JWKS_URL"`
	AuthAudience string `env:"AUTH_AUDIENCE"`

	DownloadAllowedHosts []string `env:"DOWNLOAD_ALLOWED_HOSTS" envSeparator:"," envDefault:"cloudinary.com"`

	// Human readable sizes, resolved into the byte fields below by Load.
	MaxUploadSizeRaw string `env:"MAX_UPLOAD_SIZE" envDefault:"100MB"`
	MaxFetchSizeRaw  string `env:"MAX_FETCH_SIZE" envDefault:"110MB"`

	MaxUploadBytes int64
	MaxFetchBytes  int64
}

// LoadEnvFiles loads .env files when present. Variables already set in the
// environment win.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.CloudName = strings.TrimSpace(c.CloudName)
	c.CloudAPIKey = strings.TrimSpace(c.CloudAPIKey)
	c.CloudAPISecret = strings.TrimSpace(c.CloudAPISecret)
	c.CloudAPIBaseURL = strings.TrimRight(strings.TrimSpace(c.CloudAPIBaseURL), "/")
	c.CloudDeliveryURL = strings.TrimRight(strings.TrimSpace(c.CloudDeliveryURL), "/")
	c.S3Bucket = strings.TrimSpace(c.S3Bucket)
	c.S3AccessKeyID = strings.TrimSpace(c.S3AccessKeyID)
	c.S3SecretKey = strings.TrimSpace(c.S3SecretKey)
	c.S3Endpoint = strings.TrimSpace(c.S3Endpoint)
	c.S3PublicEndpoint = strings.TrimSpace(c.S3PublicEndpoint)
	c.ArtifactBackend = strings.ToLower(strings.TrimSpace(c.ArtifactBackend))

	var err error
	if c.MaxUploadBytes, err = units.RAMInBytes(c.MaxUploadSizeRaw); err != nil {
		return fmt.Errorf("MAX_UPLOAD_SIZE: %w", err)
	}
	if c.MaxFetchBytes, err = units.RAMInBytes(c.MaxFetchSizeRaw); err != nil {
		return fmt.Errorf("MAX_FETCH_SIZE: %w", err)
	}

	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(os.TempDir(), "cloudmedia")
	}
	if c.DatabaseDSN == "" {
		c.DatabaseDSN = "cloudmedia.sqlite3"
	}

	switch c.ArtifactBackend {
	case "cloudinary", "local":
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required when ARTIFACT_BACKEND is s3")
		}
	default:
		return fmt.Errorf("unknown ARTIFACT_BACKEND %q", c.ArtifactBackend)
	}

	if c.AuthEnabled {
		if strings.TrimSpace(c.AuthIssuer) == "" {
			return fmt.Errorf("AUTH_ISSUER is required when AUTH_ENABLED is true")
		}
		if strings.TrimSpace(c.AuthJWKSURL) == "" {
			return fmt.Errorf("AUTH_JWKS_URL is required when AUTH_ENABLED is true")
		}
	}
	return nil
}

// ValidateTransform reports missing Cloudinary credentials. Only commands that
// talk to the backend need them.
func (c *Config) ValidateTransform() error {
	var missing []string
	if c.CloudName == "" {
		missing = append(missing, "CLOUDINARY_CLOUD_NAME")
	}
	if c.CloudAPIKey == "" {
		missing = append(missing, "CLOUDINARY_API_KEY")
	}
	if c.CloudAPISecret == "" {
		missing = append(missing, "CLOUDINARY_API_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsProduction reports whether logs should be emitted as JSON.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}
