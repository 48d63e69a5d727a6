package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/moodlens/backend/internal/insights"
	"github.com/moodlens/backend/pkg/logger"
)

type AdminHandler struct {
	engine *insights.Engine
}

func NewAdminHandler(engine *insights.Engine) *AdminHandler {
	return &AdminHandler{
		engine: engine,
	}
}

// HandleConfigure validates an LLM credential and enables augmented
// answering. A rejected credential leaves the engine in rule-based mode.
func (h *AdminHandler) HandleConfigure(c *fiber.Ctx) error {
	var req struct {
		APIKey string `json:"api_key"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.APIKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "api_key is required",
		})
	}

	if err := h.engine.ConfigureAugmentation(c.Context(), req.APIKey); err != nil {
		logger.Warn("Augmentation configure rejected", zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":     "Credential validation failed",
			"augmented": h.engine.Augmented(),
		})
	}

	return c.JSON(fiber.Map{
		"augmented":       true,
		"index_documents": h.engine.IndexSize(),
	})
}

func (h *AdminHandler) HandleRebuild(c *fiber.Ctx) error {
	if err := h.engine.RebuildIndex(c.Context()); err != nil {
		logger.Error("Index rebuild failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to rebuild index",
		})
	}

	return c.JSON(fiber.Map{
		"status":          "rebuilt",
		"index_documents": h.engine.IndexSize(),
	})
}

func (h *AdminHandler) GetStatus(c *fiber.Ctx) error {
	status := fiber.Map{
		"augmented":       h.engine.Augmented(),
		"index_documents": h.engine.IndexSize(),
	}
	if counts := h.engine.QueryCounts(c.Context()); counts != nil {
		status["query_counts"] = counts
	}
	return c.JSON(status)
}
