package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Institution hierarchy levels. The tree is strict: every node except the
// ministry root references its parent by ParentID.
const (
	InstitutionLevelMinistry = 1
	InstitutionLevelRegion   = 2
	InstitutionLevelSector   = 3
	InstitutionLevelSchool   = 4
)

// Institution represents a node in the organizational tree
// (ministry -> region -> sector -> school and sub-units).
type Institution struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	ArchivedAt gorm.DeletedAt `gorm:"index" json:"archived_at,omitempty"`

	Name            string         `gorm:"not null" json:"name"`
	ShortName       string         `gorm:"type:varchar(50)" json:"short_name,omitempty"`
	Type            string         `gorm:"type:varchar(50);not null" json:"type"` // e.g. "ministry", "region", "sector", "school"
	InstitutionCode string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"institution_code"`
	RegionCode      string         `gorm:"type:varchar(50)" json:"region_code,omitempty"`
	ParentID        *uint          `gorm:"index" json:"parent_id,omitempty"`
	Level           int            `gorm:"not null" json:"level"`
	ContactInfo     datatypes.JSON `gorm:"type:jsonb" json:"contact_info,omitempty"`
	Location        datatypes.JSON `gorm:"type:jsonb" json:"location,omitempty"`
	Metadata        datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	IsActive        bool           `gorm:"default:true" json:"is_active"`
	EstablishedDate *time.Time     `json:"established_date,omitempty"`

	// Relationships
	Parent          *Institution          `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
	Children        []Institution         `gorm:"foreignKey:ParentID" json:"children,omitempty"`
	Users           []User                `gorm:"foreignKey:InstitutionID" json:"-"`
	Students        []Student             `gorm:"foreignKey:InstitutionID;constraint:OnDelete:CASCADE" json:"-"`
	Departments     []Department          `gorm:"foreignKey:InstitutionID;constraint:OnDelete:CASCADE" json:"-"`
	Rooms           []Room                `gorm:"foreignKey:InstitutionID;constraint:OnDelete:CASCADE" json:"-"`
	Grades          []Grade               `gorm:"foreignKey:InstitutionID;constraint:OnDelete:CASCADE" json:"-"`
	SurveyResponses []SurveyResponse      `gorm:"foreignKey:InstitutionID;constraint:OnDelete:CASCADE" json:"-"`
	Statistics      []Statistic           `gorm:"foreignKey:InstitutionID;constraint:OnDelete:CASCADE" json:"-"`
	IndicatorValues []IndicatorValue      `gorm:"foreignKey:InstitutionID;constraint:OnDelete:CASCADE" json:"-"`
	AuditLogs       []InstitutionAuditLog `gorm:"foreignKey:InstitutionID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsRoot reports whether the institution has no parent.
func (i *Institution) IsRoot() bool {
	return i.ParentID == nil
}

// IsArchived reports whether the institution was soft deleted.
func (i *Institution) IsArchived() bool {
	return i.ArchivedAt.Valid
}
