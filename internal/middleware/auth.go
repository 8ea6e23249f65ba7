package middleware

import (
	"github.com/gofiber/fiber/v2"

	"notebridge/internal/services"
	"notebridge/pkg/auth"
)

// Protected authenticates the access token and stores the identity in
// Locals. Failures are uniformly 401 with an opaque message; the real
// reason only ever reaches the log.
func Protected(authService *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := tokenFromRequest(c)
		if token == "" {
			return unauthorized(c)
		}

		claims, err := authService.AuthenticateAccess(c.Context(), token)
		if err != nil {
			return unauthorized(c)
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("device_id", claims.DeviceID)
		c.Locals("access_token", token)
		return c.Next()
	}
}

// tokenFromRequest reads the bearer header, falling back to the token
// query parameter for websocket upgrades where headers are awkward.
func tokenFromRequest(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		if token, err := auth.ExtractToken(header); err == nil {
			return token
		}
		return ""
	}
	return c.Query("token")
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "UNAUTHORIZED",
			"message": "authentication required",
		},
	})
}

// UserID returns the authenticated user id from Locals.
func UserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

// DeviceID returns the authenticated device id from Locals.
func DeviceID(c *fiber.Ctx) string {
	deviceID, _ := c.Locals("device_id").(string)
	return deviceID
}
