package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/demo-credit/wallet-service/internal/identity"
)

// RegisterIdentityRoutes exposes the caller's profile.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Get("/me", h.Me)
}
