package handlers

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// AuthHandler exposes registration and login endpoints.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{service: authService}
}

// Register POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return apperrors.NewValidationError("valid email required", nil)
	}
	if len(req.Password) < 8 {
		return apperrors.NewValidationError("password must be at least 8 characters", nil)
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}

	customer, token, expiresAt, err := h.service.RegisterCustomer(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return apperrors.NewConflict(err.Error(), nil)
	}
	return c.Status(http.StatusCreated).JSON(dto.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Subject: dto.Subject{
			ID:    customer.ID,
			Type:  "customer",
			Name:  customer.Name,
			Email: customer.ExternalID,
		},
	})
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	customer, token, expiresAt, err := h.service.LoginCustomer(c.UserContext(), strings.TrimSpace(strings.ToLower(req.Email)), req.Password)
	if err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	return c.JSON(dto.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Subject: dto.Subject{
			ID:    customer.ID,
			Type:  "customer",
			Name:  customer.Name,
			Email: customer.ExternalID,
		},
	})
}

// AgentLogin POST /auth/agents/login.
func (h *AuthHandler) AgentLogin(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agent, token, expiresAt, err := h.service.LoginAgent(c.UserContext(), strings.TrimSpace(strings.ToLower(req.Email)), req.Password)
	if err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	return c.JSON(dto.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Subject: dto.Subject{
			ID:    agent.ID,
			Type:  "agent",
			Name:  agent.Name,
			Email: agent.Email,
			Role:  string(agent.Role),
		},
	})
}
