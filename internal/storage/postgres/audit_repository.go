package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tradeconnect/server/internal/audit"
)

var _ audit.Repository = (*AuditRepository)(nil)

type AuditRepository struct {
	db *Repository
}

func (r *AuditRepository) Insert(ctx context.Context, entry audit.Entry) error {
	q := r.db.queryer(ctx)

	_, err := q.Exec(ctx, `
INSERT INTO audit_entries
  (id, occurred_at, action, actor, resource_type, resource_id, ip_address, status, details)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`,
		entry.ID,
		entry.Timestamp,
		entry.Action,
		entry.Actor,
		entry.ResourceType,
		entry.ResourceID,
		entry.IPAddress,
		entry.Status,
		entry.Details,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, filters audit.Filters) ([]audit.Entry, int, error) {
	q := r.db.queryer(ctx)

	var total int
	err := q.QueryRow(ctx, `
SELECT count(*)
  FROM audit_entries
  WHERE ($1 = '' OR actor = $1)
    AND ($2 = '' OR action = $2)
    AND ($3 = '' OR resource_type = $3)
    AND ($4 = '' OR resource_id = $4)
    AND ($5 = '' OR status = $5)
    AND ($6::timestamptz IS NULL OR occurred_at >= $6::timestamptz)
    AND ($7::timestamptz IS NULL OR occurred_at <= $7::timestamptz)
`,
		filters.Actor,
		filters.Action,
		filters.ResourceType,
		filters.ResourceID,
		filters.Status,
		nullableTime(filters.From),
		nullableTime(filters.To),
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	rows, err := q.Query(ctx, `
SELECT id, occurred_at, action, actor, resource_type, resource_id, ip_address, status, details
  FROM audit_entries
  WHERE ($1 = '' OR actor = $1)
    AND ($2 = '' OR action = $2)
    AND ($3 = '' OR resource_type = $3)
    AND ($4 = '' OR resource_id = $4)
    AND ($5 = '' OR status = $5)
    AND ($6::timestamptz IS NULL OR occurred_at >= $6::timestamptz)
    AND ($7::timestamptz IS NULL OR occurred_at <= $7::timestamptz)
 ORDER BY occurred_at DESC
 LIMIT $8 OFFSET $9
`,
		filters.Actor,
		filters.Action,
		filters.ResourceType,
		filters.ResourceID,
		filters.Status,
		nullableTime(filters.From),
		nullableTime(filters.To),
		filters.Limit,
		filters.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var entry audit.Entry
		var occurredAt pgtype.Timestamptz
		if err := rows.Scan(
			&entry.ID,
			&occurredAt,
			&entry.Action,
			&entry.Actor,
			&entry.ResourceType,
			&entry.ResourceID,
			&entry.IPAddress,
			&entry.Status,
			&entry.Details,
		); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Timestamp = occurredAt.Time
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, total, nil
}
