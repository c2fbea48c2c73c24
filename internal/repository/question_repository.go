package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

// QuestionRepository reads the pre-registered challenge question bank.
// Bank rows are written together with the account row, see
// UserRepository.CreateWithQuestions.
type QuestionRepository interface {
	PickForUser(ctx context.Context, userID string, count int) ([]domain.ChallengeQuestion, error)
	CountForUser(ctx context.Context, userID string) (int, error)
}

type questionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository builds repository.
func NewQuestionRepository(pool *pgxpool.Pool) QuestionRepository {
	return &questionRepository{pool: pool}
}

func (r *questionRepository) PickForUser(ctx context.Context, userID string, count int) ([]domain.ChallengeQuestion, error) {
	const query = `
        SELECT id, user_id, category, question_text, answer_hash, created_at
        FROM challenge_questions WHERE user_id=$1 ORDER BY RANDOM() LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ChallengeQuestion
	for rows.Next() {
		var q domain.ChallengeQuestion
		if err := rows.Scan(
			&q.ID,
			&q.UserID,
			&q.Category,
			&q.QuestionText,
			&q.AnswerHash,
			&q.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, q)
	}
	return result, rows.Err()
}

func (r *questionRepository) CountForUser(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM challenge_questions WHERE user_id=$1`
	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
