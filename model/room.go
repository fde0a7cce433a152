package model

import (
	"time"

	"gorm.io/gorm"
)

// Room represents a physical room of an institution
type Room struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	Name          string         `gorm:"not null" json:"name"`
	RoomNumber    string         `gorm:"type:varchar(20)" json:"room_number,omitempty"`
	Capacity      int            `gorm:"default:0" json:"capacity"`
	InstitutionID uint           `gorm:"index;not null" json:"institution_id"`

	// Relationships
	Institution Institution `gorm:"foreignKey:InstitutionID" json:"-"`
}
