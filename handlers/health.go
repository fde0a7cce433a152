package handlers

import (
	"github.com/edumesh/edumesh-api/database"
	"github.com/edumesh/edumesh-api/utils/response"
	"github.com/gofiber/fiber/v2"
)

// HandleCheckHealth reports API and database health
func HandleCheckHealth(store database.Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := store.HealthCheck(); err != nil {
			return response.ServiceUnavailable(c, "Database connection is down")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
