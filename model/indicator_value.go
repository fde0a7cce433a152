package model

import (
	"time"

	"gorm.io/gorm"
)

// IndicatorValue represents one measured KPI value reported by an institution
type IndicatorValue struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	InstitutionID uint           `gorm:"index;not null" json:"institution_id"`
	IndicatorKey  string         `gorm:"type:varchar(100);not null" json:"indicator_key"`
	Year          int            `gorm:"not null" json:"year"`
	Value         float64        `gorm:"not null" json:"value"`
	Source        string         `gorm:"type:varchar(100)" json:"source,omitempty"`

	// Relationships
	Institution Institution `gorm:"foreignKey:InstitutionID" json:"-"`
}
