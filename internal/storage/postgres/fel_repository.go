package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tradeconnect/server/internal/domain/fel"
)

var _ fel.Repository = (*InvoiceRepository)(nil)

type InvoiceRepository struct {
	db *Repository
}

const invoiceColumns = `id, series, number, authorization_uuid, registration_id, event_ulid,
       amount_cents, currency, status, issued_at, voided_at, void_reason, voided_by`

func scanInvoice(row pgx.Row) (fel.Invoice, error) {
	var inv fel.Invoice
	var issuedAt, voidedAt pgtype.Timestamptz
	var voidReason, voidedBy *string
	err := row.Scan(
		&inv.ID,
		&inv.Series,
		&inv.Number,
		&inv.AuthorizationUUID,
		&inv.RegistrationID,
		&inv.EventULID,
		&inv.AmountCents,
		&inv.Currency,
		&inv.Status,
		&issuedAt,
		&voidedAt,
		&voidReason,
		&voidedBy,
	)
	if err != nil {
		return fel.Invoice{}, err
	}
	inv.IssuedAt = issuedAt.Time
	if voidedAt.Valid {
		value := voidedAt.Time
		inv.VoidedAt = &value
	}
	inv.VoidReason = derefString(voidReason)
	inv.VoidedBy = derefString(voidedBy)
	return inv, nil
}

func (r *InvoiceRepository) List(ctx context.Context, filters fel.Filters, limit int) ([]fel.Invoice, error) {
	q := r.db.queryer(ctx)

	if limit <= 0 {
		limit = 50
	}

	rows, err := q.Query(ctx, `
SELECT `+invoiceColumns+`
  FROM fel_invoices
  WHERE ($1 = '' OR status = $1)
    AND ($2 = '' OR series = $2)
    AND ($3 = '' OR event_ulid = $3)
    AND ($4::timestamptz IS NULL OR issued_at >= $4::timestamptz)
    AND ($5::timestamptz IS NULL OR issued_at <= $5::timestamptz)
 ORDER BY issued_at DESC
 LIMIT $6
`,
		filters.Status,
		filters.Series,
		strings.ToUpper(filters.EventULID),
		filters.From,
		filters.To,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []fel.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, nil
}

func (r *InvoiceRepository) Get(ctx context.Context, id string) (*fel.Invoice, error) {
	q := r.db.queryer(ctx)

	inv, err := scanInvoice(q.QueryRow(ctx, `
SELECT `+invoiceColumns+` FROM fel_invoices WHERE id = $1
`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

func (r *InvoiceRepository) MarkVoided(ctx context.Context, id, reason, voidedBy string, at time.Time) error {
	q := r.db.queryer(ctx)

	tag, err := q.Exec(ctx, `
UPDATE fel_invoices
   SET status = 'voided', voided_at = $2, void_reason = $3, voided_by = $4
 WHERE id = $1 AND status = 'issued'
`, id, at, reason, voidedBy)
	if err != nil {
		return fmt.Errorf("mark invoice voided: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fel.ErrAlreadyVoided
	}
	return nil
}
