package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/demo-credit/wallet-service/internal/payments"
)

// RegisterPaymentRoutes wires payment endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, idempotent fiber.Handler) {
	r.Post("/wallet/transfer", idempotent, h.Transfer)
}
