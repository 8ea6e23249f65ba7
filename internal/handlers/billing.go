package handlers

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"notebridge/internal/config"
	"notebridge/internal/middleware"
	"notebridge/internal/models"
	"notebridge/internal/services"
)

// BillingHandler serves the credit and token-balance endpoints.
type BillingHandler struct {
	billing *services.BillingService
	pricing *services.PricingService
	cfg     *config.Config
}

func NewBillingHandler(billing *services.BillingService, pricing *services.PricingService, cfg *config.Config) *BillingHandler {
	return &BillingHandler{billing: billing, pricing: pricing, cfg: cfg}
}

// Balance handles GET /api/billing/balance.
func (h *BillingHandler) Balance(c *fiber.Ctx) error {
	resp, err := h.billing.Balance(c.Context(), middleware.UserID(c))
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(resp)
}

// Purchase handles POST /api/billing/purchase.
func (h *BillingHandler) Purchase(c *fiber.Ctx) error {
	var req models.PurchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, models.NewValidationError("invalid request body"), h.cfg.IsProduction())
	}

	resp, err := h.billing.Purchase(c.Context(), middleware.UserID(c), &req)
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(resp)
}

// Allocate handles POST /api/billing/allocate.
func (h *BillingHandler) Allocate(c *fiber.Ctx) error {
	var req models.AllocateRequest
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, models.NewValidationError("invalid request body"), h.cfg.IsProduction())
	}

	if err := h.billing.Allocate(c.Context(), middleware.UserID(c), req.Allocations); err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}

	balance, err := h.billing.Balance(c.Context(), middleware.UserID(c))
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(fiber.Map{"success": true, "balance": balance})
}

// Consume handles POST /api/billing/consume. Advisory: the orchestrator
// already records its own consumption, this exists for client-metered
// usage paths.
func (h *BillingHandler) Consume(c *fiber.Ctx) error {
	var req models.ConsumeRequest
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, models.NewValidationError("invalid request body"), h.cfg.IsProduction())
	}

	remaining, err := h.billing.Consume(c.Context(), middleware.UserID(c), req.ModelID, req.InputTokens, req.OutputTokens)
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(models.ConsumeResponse{Success: true, RemainingTokens: remaining})
}

// Transactions handles GET /api/billing/transactions?limit=N.
func (h *BillingHandler) Transactions(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	txs, err := h.billing.Transactions(c.Context(), middleware.UserID(c), limit)
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(fiber.Map{"transactions": txs})
}

// Pricing handles GET /api/billing/pricing. Public: clients need prices
// before they authenticate purchases.
func (h *BillingHandler) Pricing(c *fiber.Ctx) error {
	table, err := h.pricing.PublicTable(c.Context())
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(fiber.Map{"models": table})
}

// ReloadPricing handles POST /api/admin/pricing/reload.
func (h *BillingHandler) ReloadPricing(c *fiber.Ctx) error {
	if err := h.pricing.SeedFromFile(c.Context(), h.cfg.PricingFile); err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	log.Printf("💰 [PRICING] Reloaded from %s via admin endpoint", h.cfg.PricingFile)
	return c.JSON(fiber.Map{"success": true})
}
