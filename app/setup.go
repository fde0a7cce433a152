package app

import (
	"fmt"
	"os"

	"github.com/edumesh/edumesh-api/api"
	"github.com/edumesh/edumesh-api/config"
	"github.com/edumesh/edumesh-api/database"
	"github.com/edumesh/edumesh-api/router"
	"github.com/edumesh/edumesh-api/services"
	"github.com/edumesh/edumesh-api/services/cron"
	"github.com/edumesh/edumesh-api/utils/cache"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	// Initialize GORM database connection
	store, err := database.StartGORM()
	if err != nil {
		print("Check whether the Postgres is running or not\n")
		print("If not running, run the following command:\n")
		print("  make docker-up   (for Docker setup)\n")
		print("  make db-up       (for local PostgreSQL)\n")
		return err
	}

	if err := store.Init(); err != nil {
		print("Failed to initialize database tables\n")
		print("Error running migrations:\n")
		return err
	}

	// Redis backs brute force protection and the operation progress
	// store. Without it the app still works on in-memory fallbacks.
	var redisCache *cache.RedisCache
	if getEnv.REDIS_URL != "" {
		redisCache, err = cache.NewRedisCache(getEnv.REDIS_URL)
		if err != nil {
			print("Warning: Failed to connect to Redis, using in-memory fallbacks\n")
			print("Error: ", err.Error(), "\n")
			redisCache = nil
		}
	}

	// Progress snapshots live in Redis when available; the in-memory
	// store needs a periodic sweep, Redis expires keys on its own.
	var progressStore services.ProgressStore
	var sweeper cron.Sweeper
	if redisCache != nil {
		progressStore = services.NewRedisProgressStore(redisCache, getEnv.OPERATION_SNAPSHOT_TTL)
	} else {
		memStore := services.NewMemoryProgressStore(getEnv.OPERATION_SNAPSHOT_TTL)
		progressStore = memStore
		sweeper = memStore
	}

	// Initialize Cron Manager (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if os.Getenv("CRON_ENABLED") != "false" { // Default to enabled
		db, ok := store.GetDB().(*gorm.DB)
		if !ok {
			print("Warning: Failed to get database connection for cron jobs\n")
		} else {
			cronManager = cron.NewCronManager(db, getEnv.OPERATION_RETENTION, sweeper)
			if err := cronManager.Start(); err != nil {
				print("Warning: Failed to start cron jobs\n")
				print("Error: ", err.Error(), "\n")
				// Don't fail the app, just log the warning
			}
		}
	}

	// Defer Closing DB, Redis and stopping cron jobs
	defer func() {
		if cronManager != nil {
			cronManager.Stop()
		}
		if redisCache != nil {
			redisCache.Close()
		}
		store.Close()
	}()

	// Init API
	var server *api.APIServer = api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	// Attach Middleware
	// Custom Logger
	app.Use(logger.New())

	app.Use(recover.New())

	// Setup Routes
	router.SetupRoutes(app, store, redisCache, progressStore)

	// Get the PORT & Start the Server
	return server.Run()

}
