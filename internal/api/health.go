package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/modelrelay/modelrelay/internal/services/database"
	"github.com/modelrelay/modelrelay/internal/services/providers"
	"github.com/modelrelay/modelrelay/internal/services/ratelimit"
)

const redisCheckTimeout = 2 * time.Second

// HealthHandler reports service liveness and dependency state.
type HealthHandler struct {
	registry *providers.Registry
	db       *database.DB
	limiter  *ratelimit.Limiter
}

func NewHealthHandler(registry *providers.Registry, db *database.DB, limiter *ratelimit.Limiter) *HealthHandler {
	return &HealthHandler{registry: registry, db: db, limiter: limiter}
}

func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	overall := "healthy"
	statusCode := fiber.StatusOK

	checks := fiber.Map{
		"providers": h.checkProviders(),
		"database":  h.checkDatabase(),
		"redis":     h.checkRedis(c.Context()),
	}
	for _, status := range checks {
		if status == "unhealthy" {
			overall = "degraded"
			statusCode = fiber.StatusServiceUnavailable
		}
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (h *HealthHandler) checkProviders() string {
	if h.registry == nil || len(h.registry.Adapters()) == 0 {
		return "unhealthy"
	}
	return "healthy"
}

func (h *HealthHandler) checkDatabase() string {
	if h.db == nil {
		return "disabled"
	}
	if err := h.db.Ping(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

func (h *HealthHandler) checkRedis(ctx context.Context) string {
	if h.limiter == nil || !h.limiter.UsesSharedStore() {
		return "disabled"
	}
	pingCtx, cancel := context.WithTimeout(ctx, redisCheckTimeout)
	defer cancel()
	if err := h.limiter.Ping(pingCtx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}
