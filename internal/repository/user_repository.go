package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

// UserRepository encapsulates account persistence.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	CreateWithQuestions(ctx context.Context, user *domain.User, questions []domain.ChallengeQuestion) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository instantiates repository.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (name, email, password_hash, role, risk_score, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.RiskScore,
		user.Status,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

// CreateWithQuestions inserts the account and its challenge question
// bank in one transaction. A user row never exists without its bank.
func (r *userRepository) CreateWithQuestions(ctx context.Context, user *domain.User, questions []domain.ChallengeQuestion) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const userQuery = `
        INSERT INTO users (name, email, password_hash, role, risk_score, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, userQuery,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.RiskScore,
		user.Status,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return err
	}

	const questionQuery = `
        INSERT INTO challenge_questions (user_id, category, question_text, answer_hash)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	for i := range questions {
		q := &questions[i]
		q.UserID = user.ID
		if err := tx.QueryRow(ctx, questionQuery,
			q.UserID,
			q.Category,
			q.QuestionText,
			q.AnswerHash,
		).Scan(&q.ID, &q.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, name, email, password_hash, role, risk_score, status, created_at, updated_at
        FROM users WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `
        SELECT id, name, email, password_hash, role, risk_score, status, created_at, updated_at
        FROM users WHERE email=$1`
	return r.fetchSingle(ctx, query, email)
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.RiskScore,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET name=$1, email=$2, password_hash=$3, role=$4, risk_score=$5, status=$6, updated_at=NOW()
        WHERE id=$7`
	cmd, err := r.pool.Exec(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.RiskScore,
		user.Status,
		user.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
