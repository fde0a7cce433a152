package router

import (
	"log"
	"os"
	"time"

	"github.com/edumesh/edumesh-api/database"
	"github.com/edumesh/edumesh-api/handlers"
	auth_handlers "github.com/edumesh/edumesh-api/handlers/auth"
	institution_handlers "github.com/edumesh/edumesh-api/handlers/institution"
	"github.com/edumesh/edumesh-api/services"
	"github.com/edumesh/edumesh-api/utils/auth"
	"github.com/edumesh/edumesh-api/utils/cache"
	"github.com/edumesh/edumesh-api/utils/middleware"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, store database.Storage, redisCache *cache.RedisCache, progressStore services.ProgressStore) {
	// Get JWT secret from environment
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "edumesh-api"
	}

	// Initialize JWT manager with config
	jwtConfig := auth.JWTConfig{
		Secret:        jwtSecret,
		Expiry:        24 * time.Hour,     // Access token expires in 24 hours
		RefreshExpiry: 7 * 24 * time.Hour, // Refresh token expires in 7 days
		Issuer:        jwtIssuer,
	}
	jwtManager := auth.NewJWTManager(jwtConfig)

	// Get DB instance (type assert from interface)
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	// Initialize brute force protection (requires Redis)
	var bruteForceProtection *middleware.BruteForceProtection
	if redisCache != nil {
		bruteForceProtection = middleware.NewBruteForceProtection(redisCache)
	}

	// Initialize auth middleware with DB for blacklist checking
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, db)

	// Initialize handlers
	authHandler := auth_handlers.NewAuthHandler(db, jwtManager, bruteForceProtection)
	deletionService := services.NewDeletionService(db, progressStore)
	institutionHandler := institution_handlers.NewInstitutionHandler(db, deletionService)

	// Apply security middleware
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
	})

	// Health check endpoints (public)
	app.Get("/ping", handlers.HandleCheckHealth(store))
	app.Get("/health", handlers.HandleCheckHealth(store))

	// API v1 group
	api := app.Group("/api/v1")

	// Auth routes (public)
	authGroup := api.Group("/auth")

	// Login with brute force protection
	if bruteForceProtection != nil {
		authGroup.Post("/login", bruteForceProtection.CheckAndRecordAttempt(), authHandler.Login)
	} else {
		authGroup.Post("/login", authHandler.Login)
	}

	authGroup.Post("/refresh", authHandler.RefreshToken)

	// Protected auth routes
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)

	// Institutions routes (all protected)
	institutions := api.Group("/institutions", authMiddleware.Required())
	institutions.Get("/", institutionHandler.ListInstitutions)
	institutions.Get("/:id", institutionHandler.GetInstitution)
	institutions.Post("/", institutionHandler.CreateInstitution)
	institutions.Put("/:id", institutionHandler.UpdateInstitution)
	institutions.Get("/:id/delete-impact", institutionHandler.GetDeleteImpact)
	institutions.Delete("/:id", institutionHandler.DeleteInstitution)

	// Delete operation polling
	operations := api.Group("/operations", authMiddleware.Required())
	operations.Get("/:operationId", institutionHandler.GetOperation)
}
