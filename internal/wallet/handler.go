package wallet

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/demo-credit/wallet-service/internal/ledger"
)

// Handler exposes wallet HTTP endpoints for the authenticated owner.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type walletResponse struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toWalletResponse(w ledger.Wallet) walletResponse {
	return walletResponse{
		ID:        w.ID,
		OwnerID:   w.OwnerID,
		Balance:   w.Balance,
		Currency:  w.Currency,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

// Me returns the caller's wallet with its balance.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	w, err := h.service.GetByOwner(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "success", "data": toWalletResponse(w)})
}

// Transactions lists the caller's wallet history, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	limit := c.QueryInt("limit", defaultPageSize)
	offset := c.QueryInt("offset", 0)
	if limit < 1 || limit > 100 {
		return fiber.NewError(http.StatusBadRequest, "limit must be between 1 and 100")
	}
	if offset < 0 {
		return fiber.NewError(http.StatusBadRequest, "offset must not be negative")
	}

	recs, err := h.service.Transactions(c.UserContext(), uid, limit, offset)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "success",
		"data":   recs,
		"meta":   fiber.Map{"limit": limit, "offset": offset, "count": len(recs)},
	})
}

// Transaction looks up one of the caller's movements by reference.
func (h *Handler) Transaction(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	rec, err := h.service.Transaction(c.UserContext(), uid, c.Params("reference"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "success", "data": rec})
}
