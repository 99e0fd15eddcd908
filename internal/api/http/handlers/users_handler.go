package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/bearer-auth/internal/api/dto"
	"github.com/spec-kit/bearer-auth/internal/service"
	apperrors "github.com/spec-kit/bearer-auth/pkg/util"
)

// UsersHandler exposes account administration endpoints.
type UsersHandler struct {
	auth *service.AuthService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService) *UsersHandler {
	return &UsersHandler{auth: authService}
}

// List handles GET /users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	principals, err := h.auth.ListUsers(c.UserContext())
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	out := make([]dto.PrincipalResponse, 0, len(principals))
	for _, p := range principals {
		out = append(out, toPrincipalResponse(p))
	}
	return c.JSON(fiber.Map{"data": out})
}
