package middleware

import (
	"strings"

	"github.com/edumesh/edumesh-api/model"
	"github.com/edumesh/edumesh-api/utils/auth"
	"github.com/edumesh/edumesh-api/utils/response"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	localsUserID   = "user_id"
	localsEmail    = "user_email"
	localsRole     = "user_role"
	localsClaims   = "claims"
	localsUser     = "user"
	localsTokenJTI = "token_jti"
)

// AuthMiddleware authenticates requests using bearer JWTs with
// blacklist and token-version checks.
type AuthMiddleware struct {
	jwtManager       *auth.JWTManager
	blacklistService *auth.BlacklistService
	db               *gorm.DB
}

func NewAuthMiddleware(jwtManager *auth.JWTManager, db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager:       jwtManager,
		blacklistService: auth.NewBlacklistService(db),
		db:               db,
	}
}

// bearerToken pulls the raw token out of the Authorization header.
func bearerToken(c *fiber.Ctx) (string, bool) {
	header := c.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// authenticate validates the bearer token end to end: signature, token
// type, blacklist, user existence and token version. On success it
// returns the user and claims; on failure it writes the response and
// returns a non-nil respErr for the caller to propagate.
func (m *AuthMiddleware) authenticate(c *fiber.Ctx) (*model.User, *auth.Claims, error) {
	tokenString, ok := bearerToken(c)
	if !ok {
		return nil, nil, response.Unauthorized(c, "Missing or malformed authorization token")
	}

	claims, err := m.jwtManager.ValidateToken(tokenString)
	if err != nil {
		if err == auth.ErrExpiredToken {
			return nil, nil, response.Unauthorized(c, "Token has expired")
		}
		return nil, nil, response.Unauthorized(c, "Invalid token")
	}
	if claims.TokenType != "access" {
		return nil, nil, response.Unauthorized(c, "Invalid token type")
	}

	revoked, err := m.blacklistService.IsTokenRevoked(c.Context(), claims.ID)
	if err != nil {
		return nil, nil, response.InternalServerError(c, "Failed to check token status")
	}
	if revoked {
		return nil, nil, response.Unauthorized(c, "Token has been revoked")
	}

	var user model.User
	if err := m.db.First(&user, claims.UserID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, response.Unauthorized(c, "User not found")
		}
		return nil, nil, response.InternalServerError(c, "Failed to load user")
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, nil, response.Unauthorized(c, "Token has been invalidated")
	}

	return &user, claims, nil
}

func storeIdentity(c *fiber.Ctx, user *model.User, claims *auth.Claims) {
	c.Locals(localsUserID, claims.UserID)
	c.Locals(localsEmail, claims.Email)
	c.Locals(localsRole, claims.Role)
	c.Locals(localsClaims, claims)
	c.Locals(localsUser, user)
	c.Locals(localsTokenJTI, claims.ID)
}

// Required rejects requests without a valid access token.
func (m *AuthMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, claims, respErr := m.authenticate(c)
		if respErr != nil {
			return respErr
		}
		storeIdentity(c, user, claims)
		return c.Next()
	}
}

// Optional attaches the identity when a valid token is present and
// passes the request through anonymously otherwise.
func (m *AuthMiddleware) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c)
		if !ok {
			return c.Next()
		}

		claims, err := m.jwtManager.ValidateToken(tokenString)
		if err != nil || claims.TokenType != "access" {
			return c.Next()
		}

		revoked, err := m.blacklistService.IsTokenRevoked(c.Context(), claims.ID)
		if err != nil || revoked {
			return c.Next()
		}

		var user model.User
		if err := m.db.First(&user, claims.UserID).Error; err != nil {
			return c.Next()
		}
		if user.TokenVersion != claims.TokenVersion {
			return c.Next()
		}

		storeIdentity(c, &user, claims)
		return c.Next()
	}
}

// RequireRole gates a route to the named roles. Must run after Required.
func (m *AuthMiddleware) RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := GetUserRole(c)
		if !ok {
			return response.Forbidden(c, "Access denied")
		}
		for _, r := range roles {
			if role == r {
				return c.Next()
			}
		}
		return response.Forbidden(c, "Insufficient permissions")
	}
}

// RequireAdmin authenticates inline and additionally requires an
// institution-management role.
func (m *AuthMiddleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, claims, respErr := m.authenticate(c)
		if respErr != nil {
			return respErr
		}
		if !user.CanManageInstitutions() {
			return response.Forbidden(c, "Admin access required")
		}
		storeIdentity(c, user, claims)
		return c.Next()
	}
}

func GetUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals(localsUserID).(uint)
	return id, ok
}

func GetUserEmail(c *fiber.Ctx) (string, bool) {
	email, ok := c.Locals(localsEmail).(string)
	return email, ok
}

func GetUserRole(c *fiber.Ctx) (string, bool) {
	role, ok := c.Locals(localsRole).(string)
	return role, ok
}

func GetUser(c *fiber.Ctx) (*model.User, bool) {
	user, ok := c.Locals(localsUser).(*model.User)
	return user, ok
}

func GetClaims(c *fiber.Ctx) (*auth.Claims, bool) {
	claims, ok := c.Locals(localsClaims).(*auth.Claims)
	return claims, ok
}

func GetTokenJTI(c *fiber.Ctx) (string, bool) {
	jti, ok := c.Locals(localsTokenJTI).(string)
	return jti, ok
}
