package payments

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	FromWalletID   string          `json:"from_wallet_id"`
	ToWalletID     string          `json:"to_wallet_id"`
	RecipientEmail string          `json:"recipient_email"`
	Amount         decimal.Decimal `json:"amount"`
	Reference      string          `json:"reference"`
	Description    string          `json:"description"`
}

// Transfer processes a wallet-to-wallet transfer from the caller's wallet.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		RequestorUserID: uid,
		FromWalletID:    req.FromWalletID,
		ToWalletID:      req.ToWalletID,
		RecipientEmail:  req.RecipientEmail,
		Amount:          req.Amount,
		Reference:       req.Reference,
		Description:     req.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotOwner):
			return fiber.NewError(http.StatusForbidden, err.Error())
		case errors.Is(err, ErrRecipientRequired):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrUnknownRecipient):
			return fiber.NewError(http.StatusNotFound, err.Error())
		default:
			return err
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"status": "success", "data": res})
}
