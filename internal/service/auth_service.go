package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/stepup-helpdesk/internal/auth"
	"github.com/spec-kit/stepup-helpdesk/internal/config"
	"github.com/spec-kit/stepup-helpdesk/internal/domain"
	"github.com/spec-kit/stepup-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/stepup-helpdesk/pkg/util"
)

// QuestionInput is one challenge question registered at provisioning.
type QuestionInput struct {
	Category string
	Question string
	Answer   string
}

// AuthService coordinates registration and login flows.
type AuthService struct {
	users      repository.UserRepository
	audit      *AuditService
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	Audit    *AuditService
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		audit:      deps.Audit,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// RegisterUser creates a new end-user account together with its challenge
// question bank. Expected answers are stored only as normalized hashes.
// All input is validated before anything is written, and the account and
// bank are inserted in one transaction: a failed registration leaves no
// trace.
func (s *AuthService) RegisterUser(ctx context.Context, name, email, password string, questions []QuestionInput) (*domain.User, string, time.Time, error) {
	if len(questions) == 0 {
		return nil, "", time.Time{}, apperrors.NewValidationError("at least one challenge question required", nil)
	}
	bank := make([]domain.ChallengeQuestion, 0, len(questions))
	for _, q := range questions {
		if strings.TrimSpace(q.Question) == "" || strings.TrimSpace(q.Answer) == "" {
			return nil, "", time.Time{}, apperrors.NewValidationError("question and answer required", nil)
		}
		bank = append(bank, domain.ChallengeQuestion{
			Category:     strings.TrimSpace(q.Category),
			QuestionText: strings.TrimSpace(q.Question),
			AnswerHash:   HashAnswer(q.Answer),
		})
	}

	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if _, err := s.users.GetByEmail(ctx, normalizedEmail); err == nil {
		return nil, "", time.Time{}, apperrors.NewValidationError("email already registered", nil)
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", time.Time{}, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	user := &domain.User{
		Name:         strings.TrimSpace(name),
		Email:        normalizedEmail,
		PasswordHash: hash,
		Role:         domain.RoleEndUser,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.CreateWithQuestions(ctx, user, bank); err != nil {
		return nil, "", time.Time{}, err
	}

	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, exp, nil
}

// Login authenticates any role and returns a role-bearing token. Both
// outcomes are audited.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, err
	}
	if user.Status != domain.UserStatusActive {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("account suspended")
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if auditErr := s.audit.Record(ctx, user.Role, user.ID, domain.AuditActionLogin, nil, domain.AuditDenied, "bad credentials"); auditErr != nil {
			return nil, "", time.Time{}, auditErr
		}
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}

	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if err := s.audit.Record(ctx, user.Role, user.ID, domain.AuditActionLogin, nil, domain.AuditSuccess, ""); err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, exp, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
