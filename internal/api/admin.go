package api

import (
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/apikey"
	"github.com/modelrelay/modelrelay/internal/services/usage"
)

// AdminHandler serves the /v1/admin management surface: users, API keys
// and usage reporting.
type AdminHandler struct {
	keys  *apikey.Service
	usage *usage.Service
}

func NewAdminHandler(keys *apikey.Service, usageSvc *usage.Service) *AdminHandler {
	return &AdminHandler{keys: keys, usage: usageSvc}
}

func (h *AdminHandler) ready() error {
	if h.keys == nil {
		return models.NewValidationError("admin API requires a configured database", nil)
	}
	return nil
}

func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return err
	}

	var req models.UserCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return models.NewValidationError("invalid request body", err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	user, err := h.keys.CreateUser(c.Context(), &req)
	if err != nil {
		return err
	}
	fiberlog.Infof("[%s] created user %d (%s)", RequestID(c), user.ID, user.Username)
	return c.Status(fiber.StatusCreated).JSON(user)
}

func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return err
	}

	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	user, err := h.keys.GetUser(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return err
	}

	users, err := h.keys.ListUsers(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"users": users, "total": len(users)})
}

func (h *AdminHandler) CreateKey(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return err
	}

	var req models.APIKeyCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return models.NewValidationError("invalid request body", err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	// The plaintext key appears in this response and nowhere else.
	key, err := h.keys.CreateKey(c.Context(), &req)
	if err != nil {
		return err
	}
	fiberlog.Infof("[%s] issued API key %d for user %d", RequestID(c), key.ID, req.UserID)
	return c.Status(fiber.StatusCreated).JSON(key)
}

func (h *AdminHandler) ListKeys(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return err
	}

	userID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	keys, err := h.keys.ListKeys(c.Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"api_keys": keys, "total": len(keys)})
}

func (h *AdminHandler) RevokeKey(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return err
	}

	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.keys.RevokeKey(c.Context(), id); err != nil {
		return err
	}
	fiberlog.Infof("[%s] revoked API key %d", RequestID(c), id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AdminHandler) ActivateKey(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return err
	}

	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.keys.ActivateKey(c.Context(), id); err != nil {
		return err
	}
	fiberlog.Infof("[%s] reactivated API key %d", RequestID(c), id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AdminHandler) UserStats(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return err
	}

	userID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	stats, err := h.usage.StatsForUser(c.Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (h *AdminHandler) UserLogs(c *fiber.Ctx) error {
	if err := h.ready(); err != nil {
		return err
	}

	userID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	logs, err := h.usage.RecentLogs(c.Context(), userID, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"request_logs": logs, "total": len(logs)})
}
