package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

// ChatRepository manages per-ticket transcripts.
type ChatRepository interface {
	// Create appends a message. The insert is guarded against CLOSED
	// tickets in the same statement, so a concurrent close cannot let a
	// message slip in; pgx.ErrNoRows signals the guard fired.
	Create(ctx context.Context, msg *domain.ChatMessage) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.ChatMessage, error)
}

type chatRepository struct {
	pool *pgxpool.Pool
}

// NewChatRepository builds repository.
func NewChatRepository(pool *pgxpool.Pool) ChatRepository {
	return &chatRepository{pool: pool}
}

func (r *chatRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	const query = `
        INSERT INTO chat_messages (ticket_id, author_type, author_id, body)
        SELECT $1,$2,$3,$4
        WHERE EXISTS (SELECT 1 FROM tickets WHERE id=$1 AND state <> $5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.AuthorType,
		msg.AuthorID,
		msg.Body,
		domain.TicketStateClosed,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *chatRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ChatMessage, error) {
	const query = `
        SELECT id, ticket_id, author_type, author_id, body, created_at
        FROM chat_messages WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.AuthorType,
			&msg.AuthorID,
			&msg.Body,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
