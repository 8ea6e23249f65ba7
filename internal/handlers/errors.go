package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"notebridge/internal/models"
)

// renderError maps any error onto the {error:{code,message,details}}
// envelope. Unknown errors become an opaque 500; the cause only goes to
// the log.
func renderError(c *fiber.Ctx, err error, production bool) error {
	appErr := models.AsAppError(err)
	if appErr == nil {
		log.Printf("❌ [HTTP] %s %s: %v", c.Method(), c.Path(), err)
		appErr = models.NewInternalError(err)
	}

	if appErr.Status >= fiber.StatusInternalServerError {
		log.Printf("❌ [HTTP] %s %s: %s: %v", c.Method(), c.Path(), appErr.Code, appErr.Unwrap())
	}

	body := fiber.Map{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	// Internal messages can carry driver errors; hide them in production.
	if production && appErr.Status >= fiber.StatusInternalServerError {
		body["message"] = "internal server error"
		delete(body, "details")
	}

	return c.Status(appErr.Status).JSON(fiber.Map{"error": body})
}
