package model

import (
	"time"

	"gorm.io/gorm"
)

// Grade represents a class group (e.g. "5A") of an institution
type Grade struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	Name          string         `gorm:"type:varchar(50);not null" json:"name"`
	ClassLevel    int            `gorm:"not null" json:"class_level"`
	InstitutionID uint           `gorm:"index;not null" json:"institution_id"`
	RoomID        *uint          `gorm:"index" json:"room_id,omitempty"`
	StudentCount  int            `gorm:"default:0" json:"student_count"`

	// Relationships
	Institution Institution `gorm:"foreignKey:InstitutionID" json:"-"`
	Room        *Room       `gorm:"foreignKey:RoomID;constraint:OnDelete:SET NULL" json:"room,omitempty"`
	Students    []Student   `gorm:"foreignKey:GradeID" json:"-"`
}
