package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/demo-credit/wallet-service/internal/auth"
)

// BearerAuth validates the bearer token and exposes the owner as the
// "user_id" local and the token id as "token_id".
func BearerAuth(tokens *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "authentication required")
		}
		raw := strings.TrimSpace(authz[len("Bearer "):])
		if raw == "" {
			return fiber.NewError(http.StatusUnauthorized, "authentication required")
		}

		session, err := tokens.Authenticate(c.UserContext(), raw)
		if err != nil {
			return err
		}

		c.Locals("user_id", session.UserID)
		c.Locals("token_id", session.TokenID)
		return c.Next()
	}
}
