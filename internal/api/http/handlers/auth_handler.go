package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/candidate-registry/internal/api/dto"
	"github.com/spec-kit/candidate-registry/internal/auth"
	"github.com/spec-kit/candidate-registry/internal/service"
	apperrors "github.com/spec-kit/candidate-registry/pkg/util/errorutil"
)

// AuthHandler serves admin login and logout.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{service: authService}
}

// Login POST /auth/admin/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.service.LoginAdmin(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Profile: dto.ProfileResponse{
			ID:    result.Profile.ID,
			Email: result.Profile.Email,
			Role:  string(result.Profile.Role),
		},
	}})
}

// Logout POST /auth/admin/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.service.Logout(c.UserContext(), principal.Claims); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
