package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

// AttemptEffects describes side effects persisted atomically with a
// session mutation: audit entries, the lockout transition and the risk
// score adjustment all commit together with the session update or not
// at all.
type AttemptEffects struct {
	Audit      []*domain.AuditLogEntry
	LockTicket bool
	RiskDelta  int
}

// VerificationRepository owns step-up session persistence.
type VerificationRepository interface {
	Create(ctx context.Context, session *domain.VerificationSession) error
	GetByID(ctx context.Context, id string) (*domain.VerificationSession, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.VerificationSession, error)
	GetLatestByTicket(ctx context.Context, ticketID string) (*domain.VerificationSession, error)
	// MutateByTokenHash loads the session under a row lock, applies fn
	// and persists the mutated session together with fn's effects in one
	// transaction. A non-nil error from fn rolls everything back and is
	// returned verbatim. Two concurrent mutations of the same session
	// serialize on the row lock.
	MutateByTokenHash(ctx context.Context, tokenHash string, fn func(*domain.VerificationSession) (*AttemptEffects, error)) (*domain.VerificationSession, error)
}

type verificationRepository struct {
	pool *pgxpool.Pool
}

// NewVerificationRepository builds repository.
func NewVerificationRepository(pool *pgxpool.Pool) VerificationRepository {
	return &verificationRepository{pool: pool}
}

const sessionColumns = `id, ticket_id, subject_user_id, agent_id, token_hash, status, questions,
        attempts_left, issued_at, expires_at, valid_until, updated_at`

func (r *verificationRepository) Create(ctx context.Context, session *domain.VerificationSession) error {
	const query = `
        INSERT INTO verification_sessions
            (ticket_id, subject_user_id, agent_id, token_hash, status, questions, attempts_left, expires_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, issued_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		session.TicketID,
		session.SubjectUserID,
		session.AgentID,
		session.TokenHash,
		session.Status,
		session.Questions,
		session.AttemptsLeft,
		session.ExpiresAt,
	).Scan(&session.ID, &session.IssuedAt, &session.UpdatedAt)
}

func (r *verificationRepository) GetByID(ctx context.Context, id string) (*domain.VerificationSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM verification_sessions WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *verificationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.VerificationSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM verification_sessions WHERE token_hash=$1`
	return r.fetchSingle(ctx, query, tokenHash)
}

func (r *verificationRepository) GetLatestByTicket(ctx context.Context, ticketID string) (*domain.VerificationSession, error) {
	query := `SELECT ` + sessionColumns + `
        FROM verification_sessions WHERE ticket_id=$1 ORDER BY issued_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, ticketID)
}

func (r *verificationRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.VerificationSession, error) {
	var session domain.VerificationSession
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&session.ID,
		&session.TicketID,
		&session.SubjectUserID,
		&session.AgentID,
		&session.TokenHash,
		&session.Status,
		&session.Questions,
		&session.AttemptsLeft,
		&session.IssuedAt,
		&session.ExpiresAt,
		&session.ValidUntil,
		&session.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *verificationRepository) MutateByTokenHash(ctx context.Context, tokenHash string, fn func(*domain.VerificationSession) (*AttemptEffects, error)) (*domain.VerificationSession, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `SELECT ` + sessionColumns + ` FROM verification_sessions WHERE token_hash=$1 FOR UPDATE`
	var session domain.VerificationSession
	if err := tx.QueryRow(ctx, query, tokenHash).Scan(
		&session.ID,
		&session.TicketID,
		&session.SubjectUserID,
		&session.AgentID,
		&session.TokenHash,
		&session.Status,
		&session.Questions,
		&session.AttemptsLeft,
		&session.IssuedAt,
		&session.ExpiresAt,
		&session.ValidUntil,
		&session.UpdatedAt,
	); err != nil {
		return nil, err
	}

	effects, err := fn(&session)
	if err != nil {
		return nil, err
	}

	const updateQuery = `
        UPDATE verification_sessions SET status=$1, attempts_left=$2, valid_until=$3, updated_at=NOW()
        WHERE id=$4`
	if _, err := tx.Exec(ctx, updateQuery,
		session.Status,
		session.AttemptsLeft,
		session.ValidUntil,
		session.ID,
	); err != nil {
		return nil, err
	}

	if effects != nil {
		if effects.LockTicket {
			const lockQuery = `
                UPDATE tickets SET state=$1, updated_at=NOW()
                WHERE id=$2 AND state=$3`
			if _, err := tx.Exec(ctx, lockQuery,
				domain.TicketStateLocked,
				session.TicketID,
				domain.TicketStateClaimed,
			); err != nil {
				return nil, err
			}
		}
		if effects.RiskDelta != 0 {
			const riskQuery = `
                UPDATE users SET risk_score = GREATEST(0, risk_score + $1), updated_at=NOW()
                WHERE id=$2`
			if _, err := tx.Exec(ctx, riskQuery, effects.RiskDelta, session.SubjectUserID); err != nil {
				return nil, err
			}
		}
		for _, entry := range effects.Audit {
			if err := insertAudit(ctx, tx, entry); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &session, nil
}
