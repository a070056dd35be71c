package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/demo-credit/wallet-service/internal/wallet"
)

// RegisterWalletRoutes wires wallet read endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallet", h.Me)
	r.Get("/wallet/transactions", h.Transactions)
	r.Get("/transactions/:reference", h.Transaction)
}
