package transform

import "time"

// Config configures the Cloudinary REST client.
type Config struct {
	CloudName       string
	APIKey          string
	APISecret       string
	APIBaseURL      string
	DeliveryBaseURL string
	Timeout         time.Duration
	MaxFetchBytes   int64
}

// UploadParams describes one signed upload.
type UploadParams struct {
	ResourceType string
	PublicID     string
	Folder       string
	Format       string
	Overwrite    bool
	Invalidate   bool
	Filename     string
	Data         []byte
}

// UploadResult is the subset of the upload response the service uses.
type UploadResult struct {
	PublicID     string   `json:"public_id"`
	ResourceType string   `json:"resource_type"`
	Format       string   `json:"format"`
	Bytes        int64    `json:"bytes"`
	Width        *int     `json:"width"`
	Height       *int     `json:"height"`
	Duration     *float64 `json:"duration"`
	Pages        int      `json:"pages"`
	SecureURL    string   `json:"secure_url"`
}

// EagerResult is one derived asset produced by the explicit endpoint.
type EagerResult struct {
	Transformation string `json:"transformation"`
	Format         string `json:"format"`
	Bytes          int64  `json:"bytes"`
	SecureURL      string `json:"secure_url"`
}

type explicitResponse struct {
	PublicID string        `json:"public_id"`
	Eager    []EagerResult `json:"eager"`
}

// Resource is the Admin API view of a stored asset.
type Resource struct {
	PublicID     string   `json:"public_id"`
	ResourceType string   `json:"resource_type"`
	Format       string   `json:"format"`
	Bytes        int64    `json:"bytes"`
	Duration     *float64 `json:"duration"`
	Pages        int      `json:"pages"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
