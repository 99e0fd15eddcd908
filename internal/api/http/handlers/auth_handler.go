package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/bearer-auth/internal/api/dto"
	"github.com/spec-kit/bearer-auth/internal/auth"
	"github.com/spec-kit/bearer-auth/internal/service"
	apperrors "github.com/spec-kit/bearer-auth/pkg/util"
)

// AuthHandler exposes registration, login and account endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return apperrors.FromValidation(err)
	}

	issued, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Username: req.Name(),
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateAccount):
			return apperrors.NewConflict("account or email already registered", nil)
		case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidUsername):
			return apperrors.NewValidationError(err.Error(), nil)
		}
		return apperrors.NewInternalError(err)
	}

	return c.Status(http.StatusCreated).JSON(dto.AuthResponse{Token: issued.Token, ExpiresAt: issued.ExpiresAt})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return apperrors.FromValidation(err)
	}

	issued, err := h.auth.Login(c.UserContext(), auth.Credentials{Account: req.Account, Secret: req.Password})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return apperrors.NewUnauthorized("invalid credentials")
		}
		return apperrors.NewInternalError(err)
	}

	return c.JSON(dto.AuthResponse{Token: issued.Token, ExpiresAt: issued.ExpiresAt})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{"data": toPrincipalResponse(principal)})
}

// ChangePassword handles POST /auth/password/change.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return apperrors.FromValidation(err)
	}

	if err := h.auth.ChangePassword(c.UserContext(), principal.ID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return apperrors.NewUnauthorized("invalid credentials")
		}
		return apperrors.NewInternalError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func toPrincipalResponse(p *auth.Principal) dto.PrincipalResponse {
	return dto.PrincipalResponse{
		ID:       p.ID,
		Username: p.Username,
		Email:    p.Email,
		Role:     string(p.Role),
		Status:   string(p.Status),
	}
}
