package funding

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes HTTP endpoints for funding and withdrawing.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Fund credits the caller's wallet.
func (h *Handler) Fund(c *fiber.Ctx) error {
	uid, req, err := parse(c)
	if err != nil {
		return err
	}
	result, err := h.service.Fund(c.UserContext(), uid, req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"status": "success", "data": result})
}

// Withdraw debits the caller's wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	uid, req, err := parse(c)
	if err != nil {
		return err
	}
	result, err := h.service.Withdraw(c.UserContext(), uid, req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"status": "success", "data": result})
}

func parse(c *fiber.Ctx) (string, MovementRequest, error) {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return "", MovementRequest{}, fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req MovementRequest
	if err := c.BodyParser(&req); err != nil {
		return "", MovementRequest{}, fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	return uid, req, nil
}
