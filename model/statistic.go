package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Statistic represents an aggregated reporting figure for an institution
// and period (e.g. enrollment totals for 2025-Q1).
type Statistic struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	InstitutionID uint           `gorm:"index;not null" json:"institution_id"`
	Period        string         `gorm:"type:varchar(20);not null" json:"period"`
	Category      string         `gorm:"type:varchar(50);not null" json:"category"`
	Data          datatypes.JSON `gorm:"type:jsonb" json:"data,omitempty"`

	// Relationships
	Institution Institution `gorm:"foreignKey:InstitutionID" json:"-"`
}
