package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/conversations"
	"github.com/modelrelay/modelrelay/internal/services/middleware"
)

// ConversationHandler serves the /v1/conversations CRUD surface. Every
// operation is scoped to the authenticated caller's own conversations.
type ConversationHandler struct {
	svc *conversations.Service
}

func NewConversationHandler(svc *conversations.Service) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

func (h *ConversationHandler) Create(c *fiber.Ctx) error {
	userID, err := h.caller(c)
	if err != nil {
		return err
	}

	var req models.ConversationCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return models.NewValidationError("invalid request body", err)
	}

	conv, err := h.svc.Create(c.Context(), userID, req.Title)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (h *ConversationHandler) Get(c *fiber.Ctx) error {
	userID, err := h.caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	conv, err := h.svc.Get(c.Context(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(conv)
}

func (h *ConversationHandler) List(c *fiber.Ctx) error {
	userID, err := h.caller(c)
	if err != nil {
		return err
	}

	limit := c.QueryInt("limit", 0)
	offset := c.QueryInt("offset", 0)

	list, err := h.svc.List(c.Context(), userID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *ConversationHandler) UpdateTitle(c *fiber.Ctx) error {
	userID, err := h.caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req models.ConversationUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return models.NewValidationError("invalid request body", err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	conv, err := h.svc.UpdateTitle(c.Context(), userID, id, req.Title)
	if err != nil {
		return err
	}
	return c.JSON(conv)
}

func (h *ConversationHandler) Delete(c *fiber.Ctx) error {
	userID, err := h.caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := h.svc.Delete(c.Context(), userID, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConversationHandler) caller(c *fiber.Ctx) (uint, error) {
	if !h.svc.Enabled() {
		return 0, models.NewValidationError("conversation persistence is not configured", nil)
	}
	ident := middleware.Identity(c)
	if !ident.Authenticated() {
		return 0, models.NewAuthenticationError("conversations require an API key")
	}
	return ident.UserID, nil
}

func pathID(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, models.NewValidationError("invalid id "+strconv.Quote(raw), err)
	}
	return uint(id), nil
}
