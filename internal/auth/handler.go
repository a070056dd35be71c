package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/demo-credit/wallet-service/internal/identity"
	"github.com/demo-credit/wallet-service/internal/ledger"
)

// Wallets provisions and finds the wallet of a newly authenticated owner.
type Wallets interface {
	Create(ctx context.Context, ownerID, currency string) (ledger.Wallet, error)
	GetByOwner(ctx context.Context, ownerID string) (ledger.Wallet, error)
}

// Handler exposes register, login and logout.
type Handler struct {
	ids      *identity.Service
	svc      *Service
	wallets  Wallets
	currency string
	logger   *slog.Logger
}

func NewHandler(ids *identity.Service, svc *Service, wallets Wallets, currency string, logger *slog.Logger) *Handler {
	return &Handler{ids: ids, svc: svc, wallets: wallets, currency: currency, logger: logger}
}

type sessionResponse struct {
	User     identity.User `json:"user"`
	WalletID string        `json:"wallet_id"`
	Token    Issued        `json:"token"`
}

// Register onboards an owner, provisions the wallet and signs them in.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req identity.Registration
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.UserContext()

	user, err := h.ids.Register(ctx, req)
	if err != nil {
		return err
	}
	w, err := h.wallets.Create(ctx, user.ID, h.currency)
	if err != nil {
		h.logger.Error("wallet provisioning failed", slog.String("user_id", user.ID), slog.Any("error", err))
		return err
	}
	issued, err := h.svc.Issue(ctx, user.ID)
	if err != nil {
		return err
	}

	h.logger.Info("auth.register completed",
		slog.String("user_id", user.ID),
		slog.String("wallet_id", w.ID),
	)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"status": "success",
		"data":   sessionResponse{User: user, WalletID: w.ID, Token: issued},
	})
}

// Login validates credentials and returns a new token, revoking older ones.
// An owner left without a wallet by an interrupted registration gets one here.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req identity.Credentials
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.UserContext()

	user, err := h.ids.Authenticate(ctx, req)
	if err != nil {
		return err
	}

	w, err := h.wallets.GetByOwner(ctx, user.ID)
	if errors.Is(err, ledger.ErrNotFound) {
		w, err = h.wallets.Create(ctx, user.ID, h.currency)
	}
	if err != nil {
		return err
	}

	issued, err := h.svc.Issue(ctx, user.ID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status": "success",
		"data":   sessionResponse{User: user, WalletID: w.ID, Token: issued},
	})
}

// Logout revokes the token the request was authenticated with.
func (h *Handler) Logout(c *fiber.Ctx) error {
	tokenID, _ := c.Locals("token_id").(string)
	if tokenID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	if err := h.svc.Logout(c.UserContext(), tokenID); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "success", "message": "logged out"})
}
