package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

// GrantRepository manages single-use privileged grants.
type GrantRepository interface {
	// CreateFromSession mints the grant, rotates the subject's password
	// hash and writes the audit entry in one transaction. It returns
	// false without side effects when the source session is no longer
	// PASSED-and-fresh or already has a grant, which is what makes the
	// grant single-use under concurrent calls.
	CreateFromSession(ctx context.Context, grant *domain.PrivilegedGrant, subjectUserID, newPasswordHash string, entry *domain.AuditLogEntry) (bool, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.PrivilegedGrant, error)
}

type grantRepository struct {
	pool *pgxpool.Pool
}

// NewGrantRepository builds repository.
func NewGrantRepository(pool *pgxpool.Pool) GrantRepository {
	return &grantRepository{pool: pool}
}

func (r *grantRepository) CreateFromSession(ctx context.Context, grant *domain.PrivilegedGrant, subjectUserID, newPasswordHash string, entry *domain.AuditLogEntry) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The session row lock serializes concurrent reset attempts.
	const sessionQuery = `
        SELECT status, valid_until FROM verification_sessions WHERE id=$1 FOR UPDATE`
	var status domain.VerificationStatus
	var validUntil *time.Time
	if err := tx.QueryRow(ctx, sessionQuery, grant.SessionID).Scan(&status, &validUntil); err != nil {
		return false, err
	}
	if status != domain.VerificationPassed || validUntil == nil || time.Now().After(*validUntil) {
		return false, nil
	}

	const existsQuery = `SELECT EXISTS (SELECT 1 FROM privileged_grants WHERE session_id=$1)`
	var exists bool
	if err := tx.QueryRow(ctx, existsQuery, grant.SessionID).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	const grantQuery = `
        INSERT INTO privileged_grants (ticket_id, session_id, action, expires_at, consumed)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, issued_at`
	if err := tx.QueryRow(ctx, grantQuery,
		grant.TicketID,
		grant.SessionID,
		grant.Action,
		grant.ExpiresAt,
		grant.Consumed,
	).Scan(&grant.ID, &grant.IssuedAt); err != nil {
		return false, err
	}

	const passwordQuery = `
        UPDATE users SET password_hash=$1, updated_at=NOW() WHERE id=$2`
	if _, err := tx.Exec(ctx, passwordQuery, newPasswordHash, subjectUserID); err != nil {
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

func (r *grantRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.PrivilegedGrant, error) {
	const query = `
        SELECT id, ticket_id, session_id, action, issued_at, expires_at, consumed
        FROM privileged_grants WHERE ticket_id=$1 ORDER BY issued_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PrivilegedGrant
	for rows.Next() {
		var grant domain.PrivilegedGrant
		if err := rows.Scan(
			&grant.ID,
			&grant.TicketID,
			&grant.SessionID,
			&grant.Action,
			&grant.IssuedAt,
			&grant.ExpiresAt,
			&grant.Consumed,
		); err != nil {
			return nil, err
		}
		result = append(result, grant)
	}
	return result, rows.Err()
}
