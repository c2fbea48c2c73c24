package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	UserID    *string
	ClaimedBy *string
	States    []domain.TicketState
	Limit     int
	Offset    int
}

// TicketRepository encapsulates ticket persistence. Claim and
// TransitionState are compare-and-set operations: they succeed only when
// the stored state still matches the expected one, which is what makes
// concurrent claims race-free.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// Claim atomically moves an OPEN ticket to CLAIMED for the agent.
	// Returns false when the ticket was not OPEN anymore.
	Claim(ctx context.Context, ticketID, agentID string) (bool, error)
	// TransitionState performs a CAS from one state to another.
	TransitionState(ctx context.Context, ticketID string, from, to domain.TicketState) (bool, error)
	// CloseWithMessage closes the ticket, appends the closure message and
	// writes the audit entry in a single transaction. Returns false when
	// the ticket was already CLOSED.
	CloseWithMessage(ctx context.Context, ticketID string, closure *domain.ChatMessage, entry *domain.AuditLogEntry) (bool, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, user_id, subject, state)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.UserID,
		ticket.Subject,
		ticket.State,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, external_key, user_id, subject, state, claimed_by, created_at, updated_at, closed_at
        FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.UserID,
		&ticket.Subject,
		&ticket.State,
		&ticket.ClaimedBy,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT id, external_key, user_id, subject, state, claimed_by, created_at, updated_at, closed_at
             FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if filter.ClaimedBy != nil {
		args = append(args, *filter.ClaimedBy)
		clauses = append(clauses, fmt.Sprintf("claimed_by=$%d", len(args)))
	}
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Claim(ctx context.Context, ticketID, agentID string) (bool, error) {
	const query = `
        UPDATE tickets SET state=$1, claimed_by=$2, updated_at=NOW()
        WHERE id=$3 AND state=$4`
	cmd, err := r.pool.Exec(ctx, query,
		domain.TicketStateClaimed,
		agentID,
		ticketID,
		domain.TicketStateOpen,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) TransitionState(ctx context.Context, ticketID string, from, to domain.TicketState) (bool, error) {
	const query = `
        UPDATE tickets SET state=$1, updated_at=NOW()
        WHERE id=$2 AND state=$3`
	cmd, err := r.pool.Exec(ctx, query, to, ticketID, from)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) CloseWithMessage(ctx context.Context, ticketID string, closure *domain.ChatMessage, entry *domain.AuditLogEntry) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const closeQuery = `
        UPDATE tickets SET state=$1, closed_at=NOW(), updated_at=NOW()
        WHERE id=$2 AND state <> $1`
	cmd, err := tx.Exec(ctx, closeQuery, domain.TicketStateClosed, ticketID)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}

	const msgQuery = `
        INSERT INTO chat_messages (ticket_id, author_type, author_id, body)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	if err := tx.QueryRow(ctx, msgQuery,
		closure.TicketID,
		closure.AuthorType,
		closure.AuthorID,
		closure.Body,
	).Scan(&closure.ID, &closure.CreatedAt); err != nil {
		return false, err
	}

	if err := insertAudit(ctx, tx, entry); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.ExternalKey,
			&ticket.UserID,
			&ticket.Subject,
			&ticket.State,
			&ticket.ClaimedBy,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
