package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/demo-credit/wallet-service/internal/auth"
)

// RegisterAuthRoutes wires registration and session endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter, bearer fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/register", h.Register)
	group.Post("/login", rateLimiter, h.Login)
	group.Post("/logout", bearer, h.Logout)
}
