package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	user, err := h.service.FindByID(c.UserContext(), uid)
	if errors.Is(err, ErrUserNotFound) {
		return fiber.NewError(http.StatusUnauthorized, "user not found")
	}
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "success", "data": user})
}
