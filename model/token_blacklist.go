package model

import (
	"time"
)

// JWTTokenBlacklist stores revoked token IDs (jti) until they expire
type JWTTokenBlacklist struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Token     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"token"` // JWT ID (jti), not the raw token
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Reason    string    `gorm:"type:varchar(100)" json:"reason,omitempty"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"-"`
}

// TableName specifies the table name for JWTTokenBlacklist
func (JWTTokenBlacklist) TableName() string {
	return "jwt_token_blacklist"
}
