package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"notebridge/internal/config"
	"notebridge/internal/middleware"
	"notebridge/internal/models"
	"notebridge/internal/services"
)

// KnowledgeBaseHandler serves the document endpoints backing the RAG
// store.
type KnowledgeBaseHandler struct {
	documents *services.DocumentService
	vectors   *services.VectorStore
	cfg       *config.Config
}

func NewKnowledgeBaseHandler(documents *services.DocumentService, vectors *services.VectorStore, cfg *config.Config) *KnowledgeBaseHandler {
	return &KnowledgeBaseHandler{documents: documents, vectors: vectors, cfg: cfg}
}

// Upload handles POST /api/knowledge-base/documents/upload (multipart:
// file + collection_name).
func (h *KnowledgeBaseHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return renderError(c, models.NewValidationError("file is required"), h.cfg.IsProduction())
	}
	collectionName := c.FormValue("collection_name")

	file, err := fileHeader.Open()
	if err != nil {
		return renderError(c, models.NewValidationError("could not read uploaded file"), h.cfg.IsProduction())
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return renderError(c, models.NewValidationError("could not read uploaded file"), h.cfg.IsProduction())
	}

	resp, err := h.documents.Upload(c.Context(), middleware.UserID(c), collectionName, fileHeader.Filename, data)
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(resp)
}

// UploadText handles POST /api/knowledge-base/documents/upload-text.
func (h *KnowledgeBaseHandler) UploadText(c *fiber.Ctx) error {
	var req struct {
		CollectionName string `json:"collection_name"`
		SourceName     string `json:"source_name"`
		Text           string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, models.NewValidationError("invalid request body"), h.cfg.IsProduction())
	}
	if req.SourceName == "" {
		req.SourceName = "pasted text"
	}

	resp, err := h.documents.UploadText(c.Context(), middleware.UserID(c), req.CollectionName, req.SourceName, req.Text)
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(resp)
}

// Collections handles GET /api/knowledge-base/collections?type=temp|persistent.
func (h *KnowledgeBaseHandler) Collections(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	infos, err := h.vectors.ListCollections(c.Context(), &userID, c.Query("type"))
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(fiber.Map{"collections": infos})
}

// Stats handles GET /api/knowledge-base/documents/stats?collection_name=X.
func (h *KnowledgeBaseHandler) Stats(c *fiber.Ctx) error {
	collectionName := c.Query("collection_name")
	if collectionName == "" {
		return renderError(c, models.NewValidationError("collection_name is required"), h.cfg.IsProduction())
	}

	userID := middleware.UserID(c)
	stats, err := h.vectors.Stats(c.Context(), collectionName, &userID)
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(stats)
}

// Search handles POST /api/knowledge-base/search.
func (h *KnowledgeBaseHandler) Search(c *fiber.Ctx) error {
	var req struct {
		CollectionName string `json:"collection_name"`
		Query          string `json:"query"`
		TopK           int    `json:"top_k"`
	}
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, models.NewValidationError("invalid request body"), h.cfg.IsProduction())
	}

	userID := middleware.UserID(c)
	hits, err := h.vectors.Search(c.Context(), req.CollectionName, req.Query, req.TopK, &userID)
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(fiber.Map{"results": hits})
}

// Clear handles DELETE /api/knowledge-base/documents/clear?collection_name=X.
func (h *KnowledgeBaseHandler) Clear(c *fiber.Ctx) error {
	collectionName := c.Query("collection_name")
	if collectionName == "" {
		return renderError(c, models.NewValidationError("collection_name is required"), h.cfg.IsProduction())
	}
	userID := middleware.UserID(c)

	deleted, err := h.vectors.DeleteCollection(c.Context(), collectionName, &userID)
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(fiber.Map{"success": true, "deleted": deleted})
}

// Share handles POST /api/knowledge-base/collections/:collection_name/share.
func (h *KnowledgeBaseHandler) Share(c *fiber.Ctx) error {
	var req struct {
		SharedWithUserID string `json:"shared_with_user_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.SharedWithUserID == "" {
		return renderError(c, models.NewValidationError("shared_with_user_id is required"), h.cfg.IsProduction())
	}

	err := h.vectors.ShareCollection(c.Context(), middleware.UserID(c), c.Params("collection_name"), req.SharedWithUserID)
	if err != nil {
		return renderError(c, err, h.cfg.IsProduction())
	}
	return c.JSON(fiber.Map{"success": true})
}
