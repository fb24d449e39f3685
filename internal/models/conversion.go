package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cloudmedia/internal/common"
)

// Conversion is an append-only record of one compress or convert operation.
type Conversion struct {
	ID           string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID       string            `gorm:"type:varchar(128);index:idx_conversions_user_kind;not null" json:"userId"`
	AssetID      string            `gorm:"type:varchar(36);index;not null" json:"assetId"`
	Asset        *Asset            `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
	Kind         string            `gorm:"type:varchar(32);index:idx_conversions_user_kind;not null" json:"kind"`
	TargetFormat string            `gorm:"type:varchar(16)" json:"targetFormat"`
	Options      datatypes.JSONMap `json:"options"`
	ResultURL    string            `gorm:"type:text" json:"resultUrl"`
	CreatedAt    time.Time         `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (Conversion) TableName() string {
	return "conversions"
}

// BeforeCreate assigns an id when the caller did not.
func (c *Conversion) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = common.GenerateUUID()
	}
	return nil
}

// Option keys stored on compress conversions.
const (
	OptMode          = "mode"
	OptTargetBytes   = "targetBytes"
	OptOriginalBytes = "originalBytes"
	OptAchieved      = "achievedBytes"
	OptApplied       = "applied"
	OptWarning       = "warning"

	ModeBestQuality = "best_quality"
	ModeTargetSize  = "target_size"
)
