package model

import (
	"time"

	"gorm.io/gorm"
)

// Student represents an enrolled pupil of an institution
type Student struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	FirstName     string         `gorm:"not null" json:"first_name"`
	LastName      string         `gorm:"not null" json:"last_name"`
	StudentNumber string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"student_number"`
	InstitutionID uint           `gorm:"index;not null" json:"institution_id"`
	GradeID       *uint          `gorm:"index" json:"grade_id,omitempty"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`

	// Relationships
	Institution Institution `gorm:"foreignKey:InstitutionID" json:"-"`
	Grade       *Grade      `gorm:"foreignKey:GradeID;constraint:OnDelete:SET NULL" json:"grade,omitempty"`
}
