package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/modelrelay/modelrelay/internal/models"
)

// ErrorHandler renders every handler error as the uniform error envelope.
// Raw error detail stays in the logs.
func ErrorHandler(c *fiber.Ctx, err error) error {
	appErr := sanitized(err)
	if appErr.StatusCode >= fiber.StatusInternalServerError {
		fiberlog.Errorf("[%s] %s %s failed: %v", RequestID(c), c.Method(), c.Path(), err)
	}
	return c.Status(appErr.GetStatusCode()).JSON(appErr.Envelope())
}

func sanitized(err error) *models.AppError {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return &models.AppError{
			Type:       models.ErrorTypeValidation,
			Message:    fiberErr.Message,
			StatusCode: fiberErr.Code,
		}
	}
	return models.SanitizeError(err)
}

// RequestID returns the correlation id for this request, minting one on
// first use.
func RequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("request_id").(string); ok && id != "" {
		return id
	}
	if id := c.Get("X-Request-ID"); id != "" {
		c.Locals("request_id", id)
		return id
	}
	id := uuid.NewString()
	c.Locals("request_id", id)
	return id
}
