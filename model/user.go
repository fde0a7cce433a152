package model

import (
	"time"

	"gorm.io/gorm"
)

// User roles, ordered roughly by how much of the tree they can see.
const (
	RoleSuperAdmin  = "superadmin"
	RoleRegionAdmin = "regionadmin"
	RoleSectorAdmin = "sektoradmin"
	RoleSchoolAdmin = "schooladmin"
	RoleTeacher     = "teacher"
)

// User represents an account attached to an institution
type User struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	Email         string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash  string         `gorm:"not null" json:"-"` // Never expose password in JSON
	Name          string         `gorm:"not null" json:"name"`
	Role          string         `gorm:"type:varchar(20);default:'teacher'" json:"role"`
	InstitutionID *uint          `gorm:"index" json:"institution_id,omitempty"`
	TokenVersion  int            `gorm:"default:0" json:"-"` // Increment to invalidate all user tokens

	// Relationships
	Institution    *Institution        `gorm:"foreignKey:InstitutionID" json:"institution,omitempty"`
	TokenBlacklist []JWTTokenBlacklist `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// CanManageInstitutions reports whether the role is allowed to touch the
// deletion surface at all. Finer-grained subtree checks happen via scope.
func (u *User) CanManageInstitutions() bool {
	switch u.Role {
	case RoleSuperAdmin, RoleRegionAdmin, RoleSectorAdmin:
		return true
	}
	return false
}
