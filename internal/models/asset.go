package models

import (
	"time"

	"gorm.io/gorm"

	"cloudmedia/internal/common"
)

// Asset is one uploaded file as tracked by the transform backend. A
// compression overwrites it in place, so Bytes always matches the artifact
// PublicID currently points at.
type Asset struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID         string    `gorm:"type:varchar(128);index;not null" json:"userId"`
	PublicID       string    `gorm:"type:varchar(255);not null" json:"publicId"`
	ResourceType   string    `gorm:"type:varchar(16);not null" json:"resourceType"`
	MimeType       *string   `gorm:"type:varchar(128)" json:"mimeType"`
	OriginalFormat string    `gorm:"type:varchar(16);not null" json:"originalFormat"`
	Bytes          int64     `gorm:"not null" json:"bytes"`
	Width          *int      `json:"width"`
	Height         *int      `json:"height"`
	Duration       *float64  `json:"duration"`
	// Storage names the artifact store holding PublicID; empty means the
	// transform backend.
	Storage        string    `gorm:"type:varchar(16);not null;default:''" json:"storage,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Asset) TableName() string {
	return "media_assets"
}

// BeforeCreate assigns an id when the caller did not.
func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = common.GenerateUUID()
	}
	return nil
}

// IsPDF reports whether the asset is a PDF stored under the image kind.
func (a *Asset) IsPDF() bool {
	return a.OriginalFormat == common.FormatPDF
}

// IsVideo reports whether the backend treats the asset as video or audio.
func (a *Asset) IsVideo() bool {
	return a.ResourceType == common.ResourceVideo
}

// HasDuration reports whether a positive duration is known.
func (a *Asset) HasDuration() bool {
	return a.Duration != nil && *a.Duration > 0
}
