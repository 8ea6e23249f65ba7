package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"notebridge/internal/logging"
)

// AdminOnly guards operational endpoints (pricing reload, sweeps) with a
// static token. When no token is configured the endpoints are disabled
// rather than open.
func AdminOnly(adminToken string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if adminToken == "" {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    "NOT_FOUND",
					"message": "not found",
				},
			})
		}

		provided := c.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(adminToken)) != 1 {
			logging.SecurityEvent("admin_token_rejected", "ip", c.IP(), "path", c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    "FORBIDDEN",
					"message": "admin access required",
				},
			})
		}
		return c.Next()
	}
}
