package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/apikey"
)

const identityLocal = "client_identity"

// IdentityMiddleware resolves who is calling: a validated API key, a raw
// key when validation is off, or the client IP for anonymous traffic.
type IdentityMiddleware struct {
	cfg       models.AuthConfig
	keys      *apikey.Service
	skipPaths []string
}

func NewIdentity(cfg models.AuthConfig, keys *apikey.Service) *IdentityMiddleware {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-API-Key"
	}
	return &IdentityMiddleware{cfg: cfg, keys: keys}
}

// SkipPaths exempts path prefixes from key validation. Skipped requests
// still get an IP-keyed identity.
func (m *IdentityMiddleware) SkipPaths(prefixes ...string) *IdentityMiddleware {
	m.skipPaths = append(m.skipPaths, prefixes...)
	return m
}

// Resolve attaches a ClientIdentity to the request. With auth enabled a
// missing or invalid key is rejected unless anonymous access is allowed.
func (m *IdentityMiddleware) Resolve() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := m.extractKey(c)

		if m.shouldSkip(c.Path()) || !m.cfg.Enabled || m.keys == nil {
			ident := models.ClientIdentity{ClientID: "ip:" + c.IP()}
			if key != "" {
				ident.ClientID = "key:" + models.ExtractKeyPrefix(key)
			}
			c.Locals(identityLocal, ident)
			return c.Next()
		}

		if key == "" {
			if m.cfg.AllowAnonymous {
				c.Locals(identityLocal, models.ClientIdentity{ClientID: "ip:" + c.IP()})
				return c.Next()
			}
			return models.NewAuthenticationError("API key required")
		}

		record, err := m.keys.Validate(c.Context(), key)
		if err != nil {
			// One message for unknown, expired and revoked keys.
			return models.NewAuthenticationError("invalid API key")
		}

		c.Locals(identityLocal, models.ClientIdentity{
			ClientID: "key:" + record.KeyPrefix,
			APIKeyID: record.ID,
			UserID:   record.UserID,
		})
		return c.Next()
	}
}

// RequireAuthenticated rejects requests that did not present a valid key.
func (m *IdentityMiddleware) RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !Identity(c).Authenticated() {
			return models.NewAuthenticationError("API key required")
		}
		return c.Next()
	}
}

func (m *IdentityMiddleware) shouldSkip(path string) bool {
	for _, prefix := range m.skipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (m *IdentityMiddleware) extractKey(c *fiber.Ctx) string {
	if key := strings.TrimSpace(c.Get(m.cfg.HeaderName)); key != "" {
		return key
	}
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// Identity returns the identity resolved for this request, or an IP-keyed
// anonymous identity when the middleware did not run.
func Identity(c *fiber.Ctx) models.ClientIdentity {
	if ident, ok := c.Locals(identityLocal).(models.ClientIdentity); ok {
		return ident
	}
	return models.ClientIdentity{ClientID: "ip:" + c.IP()}
}
