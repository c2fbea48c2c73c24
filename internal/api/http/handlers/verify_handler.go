package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/stepup-helpdesk/internal/api/dto"
	"github.com/spec-kit/stepup-helpdesk/internal/service"
	apperrors "github.com/spec-kit/stepup-helpdesk/pkg/util"
)

// VerifyHandler serves the public challenge surface. The URL token is
// the sole credential; no login is required.
type VerifyHandler struct {
	service *service.VerificationService
}

// NewVerifyHandler constructs handler.
func NewVerifyHandler(verificationService *service.VerificationService) *VerifyHandler {
	return &VerifyHandler{service: verificationService}
}

// GetChallenge GET /verify/:token.
func (h *VerifyHandler) GetChallenge(c *fiber.Ctx) error {
	questions, err := h.service.GetChallenge(c.UserContext(), c.Params("token"))
	if err != nil {
		return err
	}
	views := make([]dto.ChallengeQuestionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, dto.ChallengeQuestionView{
			ID:           q.QuestionID,
			QuestionText: q.QuestionText,
		})
	}
	return c.JSON(fiber.Map{"data": dto.ChallengeResponse{Questions: views}})
}

// SubmitAnswers POST /verify/:token.
func (h *VerifyHandler) SubmitAnswers(c *fiber.Ctx) error {
	var req dto.SubmitAnswersRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.Answers) == 0 {
		return apperrors.NewValidationError("answers required", nil)
	}

	session, err := h.service.SubmitAnswers(c.UserContext(), c.Params("token"), req.Answers)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.VerificationResultResponse{
		Status:     string(session.Status),
		ValidUntil: *session.ValidUntil,
	}})
}
