package model

import (
	"time"

	"gorm.io/gorm"
)

// Department represents an administrative sub-unit inside an institution
type Department struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	Name          string         `gorm:"not null" json:"name"`
	ShortName     string         `gorm:"type:varchar(50)" json:"short_name,omitempty"`
	InstitutionID uint           `gorm:"index;not null" json:"institution_id"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`

	// Relationships
	Institution Institution `gorm:"foreignKey:InstitutionID" json:"-"`
}
