package auth

import (
	"time"

	"github.com/edumesh/edumesh-api/model"
	"github.com/edumesh/edumesh-api/utils/auth"
	"github.com/edumesh/edumesh-api/utils/middleware"
	"gorm.io/gorm"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	db                   *gorm.DB
	jwtManager           *auth.JWTManager
	blacklistService     *auth.BlacklistService
	bruteForceProtection *middleware.BruteForceProtection
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db *gorm.DB, jwtManager *auth.JWTManager, bruteForceProtection *middleware.BruteForceProtection) *AuthHandler {
	return &AuthHandler{
		db:                   db,
		jwtManager:           jwtManager,
		blacklistService:     auth.NewBlacklistService(db),
		bruteForceProtection: bruteForceProtection,
	}
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID            uint      `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	InstitutionID *uint     `json:"institution_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		InstitutionID: u.InstitutionID,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// issueTokens mints a fresh access and refresh token pair for the user.
func (h *AuthHandler) issueTokens(u *model.User) (access string, refresh string, err error) {
	access, _, err = h.jwtManager.GenerateAccessToken(u.ID, u.Email, u.Role, u.TokenVersion)
	if err != nil {
		return "", "", err
	}
	refresh, _, err = h.jwtManager.GenerateRefreshToken(u.ID, u.Email, u.Role, u.TokenVersion)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
