package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/demo-credit/wallet-service/internal/funding"
)

// RegisterFundingRoutes wires fund and withdraw endpoints.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, idempotent fiber.Handler) {
	r.Post("/wallet/fund", idempotent, h.Fund)
	r.Post("/wallet/withdraw", idempotent, h.Withdraw)
}
