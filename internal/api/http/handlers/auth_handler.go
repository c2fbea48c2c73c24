package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/stepup-helpdesk/internal/api/dto"
	"github.com/spec-kit/stepup-helpdesk/internal/domain"
	"github.com/spec-kit/stepup-helpdesk/internal/service"
	apperrors "github.com/spec-kit/stepup-helpdesk/pkg/util"
)

// AuthHandler manages registration and login.
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
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("name, email, password required", nil)
	}
	questions := make([]service.QuestionInput, 0, len(req.Questions))
	for _, q := range req.Questions {
		if strings.TrimSpace(q.Question) == "" || strings.TrimSpace(q.Answer) == "" {
			return apperrors.NewValidationError("each question needs text and an answer", nil)
		}
		questions = append(questions, service.QuestionInput{
			Category: q.Category,
			Question: q.Question,
			Answer:   q.Answer,
		})
	}

	user, token, expiresAt, err := h.service.RegisterUser(c.UserContext(), req.Name, req.Email, req.Password, questions)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      userResponse(user),
	}})
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	user, token, expiresAt, err := h.service.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      userResponse(user),
	}})
}

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		Status:    user.Status,
		CreatedAt: user.CreatedAt,
	}
}
