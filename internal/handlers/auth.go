package handlers

import (
	"fmt"
	"html"

	"github.com/gofiber/fiber/v2"

	"notebridge/internal/config"
	"notebridge/internal/middleware"
	"notebridge/internal/models"
	"notebridge/internal/services"
)

// AuthHandler serves device registration, the token lifecycle and the
// Google OAuth linking flow.
type AuthHandler struct {
	auth  *services.AuthService
	oauth *services.OAuthService // nil when OAuth is not configured
	cfg   *config.Config
}

func NewAuthHandler(auth *services.AuthService, oauth *services.OAuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{auth: auth, oauth: oauth, cfg: cfg}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, models.NewValidationError("invalid request body"), h.cfg.IsProduction())
	}

	result, err := h.auth.Register(c.Context(), req.DeviceID, req.DeviceName, req.DeviceType)
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}

	message := "welcome back"
	if result.IsNewUser {
		message = "account created"
	}
	return c.JSON(models.RegisterResponse{
		UserID:       result.UserID,
		IsNewUser:    result.IsNewUser,
		Message:      message,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "Bearer",
	})
}

// Verify handles POST /api/auth/verify: the client checks that its stored
// user_id still matches the device.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	var req models.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, models.NewValidationError("invalid request body"), h.cfg.IsProduction())
	}

	resp, err := h.auth.VerifyDevice(c.Context(), req.DeviceID, req.UserID)
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(resp)
}

// Refresh handles POST /api/auth/refresh. The consumed refresh token is
// blacklisted; the response carries a fresh pair.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req models.RefreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return renderError(c, models.NewValidationError("refresh_token is required"), h.cfg.IsProduction())
	}

	access, refresh, err := h.auth.Refresh(c.Context(), req.RefreshToken)
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(models.TokenPairResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	})
}

// Logout handles POST /api/auth/logout, blacklisting both tokens.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req models.LogoutRequest
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, models.NewValidationError("invalid request body"), h.cfg.IsProduction())
	}
	if req.AccessToken == "" {
		req.AccessToken, _ = c.Locals("access_token").(string)
	}

	if err := h.auth.Logout(c.Context(), req.AccessToken, req.RefreshToken); err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(fiber.Map{"success": true})
}

// Devices handles GET /api/auth/devices for the authenticated user.
func (h *AuthHandler) Devices(c *fiber.Ctx) error {
	devices, err := h.auth.ListDevices(c.Context(), middleware.UserID(c))
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(fiber.Map{"devices": devices})
}

// DisableDevice handles DELETE /api/auth/devices/:device_id.
func (h *AuthHandler) DisableDevice(c *fiber.Ctx) error {
	deviceID := c.Params("device_id")
	if err := h.auth.DisableDevice(c.Context(), middleware.UserID(c), deviceID); err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(fiber.Map{"success": true})
}

// GoogleStart handles POST /api/auth/google/auth-start.
func (h *AuthHandler) GoogleStart(c *fiber.Ctx) error {
	if h.oauth == nil {
		return renderError(c, models.NewValidationError("Google sign-in is not configured"), h.cfg.IsProduction())
	}

	var req models.AuthStartRequest
	if err := c.BodyParser(&req); err != nil || req.DeviceID == "" {
		return renderError(c, models.NewValidationError("device_id is required"), h.cfg.IsProduction())
	}

	resp, err := h.oauth.StartAuth(c.Context(), req.DeviceID)
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(resp)
}

// GoogleCallback handles GET /api/auth/google/callback, hit by the
// browser, not the app. Success is a 307 into the deep link; errors get a
// small HTML page that retries the redirect via JS, since some in-app
// browsers drop 307s to custom schemes.
func (h *AuthHandler) GoogleCallback(c *fiber.Ctx) error {
	if h.oauth == nil {
		return c.Status(fiber.StatusNotFound).SendString("not found")
	}

	result := h.oauth.HandleCallback(c.Context(), c.Query("code"), c.Query("state"), c.Query("error"))
	if result.Err == "" {
		return c.Redirect(result.RedirectURL, fiber.StatusTemporaryRedirect)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	safeURL := html.EscapeString(result.RedirectURL)
	return c.Status(fiber.StatusOK).SendString(fmt.Sprintf(
		`<!DOCTYPE html><html><body><p>Sign-in failed (%s). Returning to the app...</p>`+
			`<script>window.location.href=%q;</script>`+
			`<a href=%q>Tap here if nothing happens</a></body></html>`,
		html.EscapeString(result.Err), safeURL, safeURL))
}
