package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/providers"
)

// ModelsHandler serves GET /v1/models from whatever providers are
// configured.
type ModelsHandler struct {
	registry *providers.Registry
}

func NewModelsHandler(registry *providers.Registry) *ModelsHandler {
	return &ModelsHandler{registry: registry}
}

func (h *ModelsHandler) ListModels(c *fiber.Ctx) error {
	list := models.ModelList{Object: "list", Data: []models.ModelInfo{}}
	for _, adapter := range h.registry.Adapters() {
		list.Data = append(list.Data, adapter.Models()...)
	}
	return c.JSON(list)
}
