package model

import (
	"time"
)

// InstitutionAuditLog captures the audit trail of structural changes to the
// tree. Hard deletes write their initiation entry against the parent node so
// the trail survives the removal of the target itself.
type InstitutionAuditLog struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	InstitutionID uint      `gorm:"index;not null" json:"institution_id"`
	UserID        *uint     `gorm:"index" json:"user_id,omitempty"`
	Action        string    `gorm:"type:varchar(100);not null" json:"action"` // e.g. "created", "archived", "hard_delete_initiated"
	OldValues     string    `gorm:"type:jsonb" json:"old_values,omitempty"`
	NewValues     string    `gorm:"type:jsonb" json:"new_values,omitempty"`
	IPAddress     string    `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	UserAgent     string    `gorm:"type:text" json:"user_agent,omitempty"`
	Description   string    `gorm:"type:text" json:"description,omitempty"`

	// Relationships
	Institution Institution `gorm:"foreignKey:InstitutionID" json:"-"`
}

// TableName specifies the table name for InstitutionAuditLog
func (InstitutionAuditLog) TableName() string {
	return "institution_audit_logs"
}
