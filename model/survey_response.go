package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SurveyResponse status values
const (
	SurveyResponseStatusDraft     = "draft"
	SurveyResponseStatusSubmitted = "submitted"
	SurveyResponseStatusApproved  = "approved"
)

// SurveyResponse represents one institution's answers to a survey
type SurveyResponse struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	SurveyName    string         `gorm:"not null" json:"survey_name"`
	InstitutionID uint           `gorm:"index;not null" json:"institution_id"`
	RespondentID  *uint          `gorm:"index" json:"respondent_id,omitempty"`
	Status        string         `gorm:"type:varchar(20);default:'draft'" json:"status"`
	Answers       datatypes.JSON `gorm:"type:jsonb" json:"answers,omitempty"`
	SubmittedAt   *time.Time     `json:"submitted_at,omitempty"`

	// Relationships
	Institution Institution `gorm:"foreignKey:InstitutionID" json:"-"`
	Respondent  *User       `gorm:"foreignKey:RespondentID;constraint:OnDelete:SET NULL" json:"-"`
}
