package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/ratelimit"
)

// RateLimitMiddleware applies the sliding-window limiter per client.
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
}

func NewRateLimit(limiter *ratelimit.Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

// Limit admits or rejects the request and reports window state through
// X-RateLimit headers either way.
func (m *RateLimitMiddleware) Limit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.limiter == nil {
			return c.Next()
		}

		decision, err := m.limiter.Admit(c.Context(), Identity(c).ClientID)
		if err != nil {
			return models.NewInternalError("rate limit check failed", err)
		}

		c.Set("X-RateLimit-Limit-Minute", strconv.Itoa(decision.LimitMinute))
		c.Set("X-RateLimit-Remaining-Minute", strconv.Itoa(decision.RemainingMinute))
		c.Set("X-RateLimit-Limit-Hour", strconv.Itoa(decision.LimitHour))
		c.Set("X-RateLimit-Remaining-Hour", strconv.Itoa(decision.RemainingHour))

		if !decision.Allowed {
			return models.NewRateLimitError("rate limit exceeded, try again later")
		}
		return c.Next()
	}
}
