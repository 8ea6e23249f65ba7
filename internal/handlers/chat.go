package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"notebridge/internal/config"
	"notebridge/internal/middleware"
	"notebridge/internal/models"
	"notebridge/internal/services"
	"notebridge/internal/tools"
)

// ChatHandler serves the agent endpoints.
type ChatHandler struct {
	chat      *services.ChatService
	providers *services.LLMProviderService
	registry  *tools.Registry
	cfg       *config.Config
}

func NewChatHandler(chat *services.ChatService, providers *services.LLMProviderService, registry *tools.Registry, cfg *config.Config) *ChatHandler {
	return &ChatHandler{chat: chat, providers: providers, registry: registry, cfg: cfg}
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, models.NewValidationError("invalid request body"), h.cfg.IsProduction())
	}

	start := time.Now()
	if m := services.GetMetrics(); m != nil {
		m.RecordChatRequest()
		defer func() { m.RecordChatLatency(time.Since(start).Seconds()) }()
	}

	resp, err := h.chat.Chat(c.Context(), middleware.UserID(c), &req)
	if err != nil {
		if m := services.GetMetrics(); m != nil {
			code := "INTERNAL_ERROR"
			if appErr := models.AsAppError(err); appErr != nil {
				code = appErr.Code
			}
			m.RecordChatError(code)
		}
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(resp)
}

// Summarize handles POST /api/chat/summarize.
func (h *ChatHandler) Summarize(c *fiber.Ctx) error {
	var req models.SummarizeRequest
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, models.NewValidationError("invalid request body"), h.cfg.IsProduction())
	}

	resp, err := h.chat.Summarize(c.Context(), middleware.UserID(c), &req)
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(resp)
}

// Providers handles GET /api/llm-providers.
func (h *ChatHandler) Providers(c *fiber.Ctx) error {
	providers, err := h.providers.Providers(c.Context())
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(fiber.Map{"providers": providers})
}

// Tools handles GET /api/tools: the catalog in provider format, so
// clients can render what the agent is capable of.
func (h *ChatHandler) Tools(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"tools": h.registry.Catalog()})
}
