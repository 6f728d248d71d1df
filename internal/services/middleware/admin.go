package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/modelrelay/modelrelay/internal/models"
)

// AdminMiddleware guards management endpoints with signed JWTs.
type AdminMiddleware struct {
	secret []byte
	now    func() time.Time
}

func NewAdmin(secret string) *AdminMiddleware {
	return &AdminMiddleware{secret: []byte(secret), now: time.Now}
}

// RequireAdmin validates the bearer token on the request. Without a
// configured secret every request is rejected.
func (m *AdminMiddleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(m.secret) == 0 {
			return models.NewAuthenticationError("admin API is not configured")
		}

		tokenString := bearerToken(c)
		if tokenString == "" {
			return models.NewAuthenticationError("admin token required")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
			return m.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			return models.NewAuthenticationError("invalid admin token")
		}

		if sub, err := token.Claims.GetSubject(); err == nil {
			c.Locals("admin_subject", sub)
		}
		return c.Next()
	}
}

// IssueToken mints an HS256 admin token for subject.
func (m *AdminMiddleware) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
