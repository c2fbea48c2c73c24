package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so audit inserts
// can join a caller's transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AuditFilter captures auditor query parameters.
type AuditFilter struct {
	TicketID *string
	Limit    int
	Offset   int
}

// AuditRepository is the append-only security event store. No update or
// delete methods exist.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditFilter) ([]domain.AuditLogEntry, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	return insertAudit(ctx, r.pool, entry)
}

func insertAudit(ctx context.Context, q querier, entry *domain.AuditLogEntry) error {
	const query = `
        INSERT INTO audit_log (actor_role, actor_hash, action, ticket_id, result, context)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING seq, id, ts`
	return q.QueryRow(ctx, query,
		entry.ActorRole,
		entry.ActorHash,
		entry.Action,
		entry.TicketID,
		entry.Result,
		entry.Context,
	).Scan(&entry.Seq, &entry.ID, &entry.Timestamp)
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]domain.AuditLogEntry, error) {
	query := `
        SELECT seq, id, ts, actor_role, actor_hash, action, ticket_id, result, context
        FROM audit_log`
	args := []any{}
	if filter.TicketID != nil {
		args = append(args, *filter.TicketID)
		query += ` WHERE ticket_id=$1`
	}
	query += ` ORDER BY seq ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query = fmt.Sprintf("%s LIMIT %d OFFSET %d", query, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditLogEntry
	for rows.Next() {
		var entry domain.AuditLogEntry
		if err := rows.Scan(
			&entry.Seq,
			&entry.ID,
			&entry.Timestamp,
			&entry.ActorRole,
			&entry.ActorHash,
			&entry.Action,
			&entry.TicketID,
			&entry.Result,
			&entry.Context,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
