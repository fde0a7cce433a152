package model

import (
	"time"

	"gorm.io/datatypes"
)

// DeleteMode selects between archiving a node and removing it for good.
type DeleteMode string

const (
	DeleteModeSoft DeleteMode = "soft"
	DeleteModeHard DeleteMode = "hard"
)

// DeleteOperationStatus represents the lifecycle of a deletion operation
type DeleteOperationStatus string

const (
	DeleteOperationStatusPending   DeleteOperationStatus = "pending"
	DeleteOperationStatusRunning   DeleteOperationStatus = "running"
	DeleteOperationStatusCompleted DeleteOperationStatus = "completed"
	DeleteOperationStatusFailed    DeleteOperationStatus = "failed"
)

// DeleteOperation is the persisted record of one asynchronous deletion.
// The executor is its only writer; once the status is terminal the row is
// never mutated again and is purged after the retention window.
type DeleteOperation struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OperationID       string                `gorm:"type:varchar(36);uniqueIndex;not null" json:"operation_id"`
	InstitutionID     uint                  `gorm:"index;not null" json:"institution_id"`
	Mode              DeleteMode            `gorm:"type:varchar(10);not null" json:"mode"`
	Status            DeleteOperationStatus `gorm:"type:varchar(15);default:'pending'" json:"status"`
	Progress          int                   `gorm:"default:0" json:"progress"`
	CurrentStage      string                `gorm:"type:varchar(120)" json:"current_stage,omitempty"`
	StagesCompleted   int                   `gorm:"default:0" json:"stages_completed"`
	TotalStages       int                   `gorm:"default:0" json:"total_stages"`
	StartedAt         *time.Time            `json:"started_at,omitempty"`
	CompletedAt       *time.Time            `json:"completed_at,omitempty"`
	FailedAt          *time.Time            `json:"failed_at,omitempty"`
	Warnings          datatypes.JSON        `gorm:"type:jsonb" json:"warnings,omitempty"`
	Message           string                `gorm:"type:text" json:"message,omitempty"`
	ErrorMessage      string                `gorm:"type:text" json:"error,omitempty"`
	Metadata          datatypes.JSON        `gorm:"type:jsonb" json:"metadata,omitempty"` // frozen impact counts
	RequestedByUserID uint                  `gorm:"index;not null" json:"requested_by_user_id"`

	// Relationships
	RequestedBy User `gorm:"foreignKey:RequestedByUserID;constraint:OnDelete:SET NULL" json:"-"`
}

// IsTerminal reports whether the operation reached a final state.
func (o *DeleteOperation) IsTerminal() bool {
	return o.Status == DeleteOperationStatusCompleted || o.Status == DeleteOperationStatusFailed
}
