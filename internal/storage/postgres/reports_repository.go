package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/tradeconnect/server/internal/domain/reports"
)

var _ reports.Repository = (*ReportRepository)(nil)

type ReportRepository struct {
	db *Repository
}

func (r *ReportRepository) InvoiceTotals(ctx context.Context, from, to time.Time) (reports.InvoiceTotals, error) {
	q := r.db.queryer(ctx)

	var totals reports.InvoiceTotals
	var currency *string
	err := q.QueryRow(ctx, `
SELECT count(*) FILTER (WHERE status = 'issued'),
       COALESCE(SUM(amount_cents) FILTER (WHERE status = 'issued'), 0),
       count(*) FILTER (WHERE status = 'voided'),
       COALESCE(SUM(amount_cents) FILTER (WHERE status = 'voided'), 0),
       MIN(currency)
  FROM fel_invoices
 WHERE issued_at >= $1 AND issued_at < $2
`, from, to).Scan(
		&totals.IssuedCount,
		&totals.IssuedCents,
		&totals.VoidedCount,
		&totals.VoidedCents,
		&currency,
	)
	if err != nil {
		return reports.InvoiceTotals{}, fmt.Errorf("invoice totals: %w", err)
	}
	totals.Currency = derefString(currency)
	return totals, nil
}

func (r *ReportRepository) RevenueByEvent(ctx context.Context, from, to time.Time) ([]reports.EventRevenue, error) {
	q := r.db.queryer(ctx)

	rows, err := q.Query(ctx, `
SELECT i.event_ulid,
       COALESCE(e.name, ''),
       COALESCE(SUM(i.amount_cents) FILTER (WHERE i.status = 'issued'), 0),
       count(*) FILTER (WHERE i.status = 'issued')
  FROM fel_invoices i
  LEFT JOIN events e ON e.ulid = i.event_ulid
 WHERE i.issued_at >= $1 AND i.issued_at < $2
 GROUP BY i.event_ulid, e.name
 ORDER BY 3 DESC
`, from, to)
	if err != nil {
		return nil, fmt.Errorf("revenue by event: %w", err)
	}
	defer rows.Close()

	var out []reports.EventRevenue
	for rows.Next() {
		var rev reports.EventRevenue
		if err := rows.Scan(&rev.EventULID, &rev.EventName, &rev.NetCents, &rev.Invoices); err != nil {
			return nil, fmt.Errorf("scan event revenue: %w", err)
		}
		out = append(out, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revenue by event: %w", err)
	}
	return out, nil
}

func (r *ReportRepository) RevenueByMonth(ctx context.Context, from, to time.Time) ([]reports.MonthRevenue, error) {
	q := r.db.queryer(ctx)

	rows, err := q.Query(ctx, `
SELECT to_char(date_trunc('month', issued_at), 'YYYY-MM'),
       COALESCE(SUM(amount_cents) FILTER (WHERE status = 'issued'), 0)
  FROM fel_invoices
 WHERE issued_at >= $1 AND issued_at < $2
 GROUP BY 1
 ORDER BY 1 ASC
`, from, to)
	if err != nil {
		return nil, fmt.Errorf("revenue by month: %w", err)
	}
	defer rows.Close()

	var out []reports.MonthRevenue
	for rows.Next() {
		var rev reports.MonthRevenue
		if err := rows.Scan(&rev.Month, &rev.NetCents); err != nil {
			return nil, fmt.Errorf("scan month revenue: %w", err)
		}
		out = append(out, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revenue by month: %w", err)
	}
	return out, nil
}

func (r *ReportRepository) RegistrationTotals(ctx context.Context, from, to time.Time) (reports.RegistrationTotals, error) {
	q := r.db.queryer(ctx)

	var totals reports.RegistrationTotals
	err := q.QueryRow(ctx, `
SELECT count(DISTINCT e.ulid),
       count(r.id) FILTER (WHERE r.status = 'confirmed'),
       count(r.id) FILTER (WHERE r.status = 'confirmed' AND r.checked_in_at IS NOT NULL)
  FROM events e
  LEFT JOIN registrations r ON r.event_ulid = e.ulid
 WHERE e.starts_at >= $1 AND e.starts_at < $2
`, from, to).Scan(&totals.EventsHeld, &totals.Registrations, &totals.CheckIns)
	if err != nil {
		return reports.RegistrationTotals{}, fmt.Errorf("registration totals: %w", err)
	}

	err = q.QueryRow(ctx, `
SELECT COALESCE(SUM(c.capacity * (100 + c.overbooking_percent) / 100), 0)
  FROM event_capacity_configs c
  JOIN events e ON e.ulid = c.event_ulid
 WHERE e.starts_at >= $1 AND e.starts_at < $2
`, from, to).Scan(&totals.SeatsOffered)
	if err != nil {
		return reports.RegistrationTotals{}, fmt.Errorf("seats offered: %w", err)
	}
	return totals, nil
}

func (r *ReportRepository) WaitlistTotals(ctx context.Context, from, to time.Time) (reports.WaitlistTotals, error) {
	q := r.db.queryer(ctx)

	var totals reports.WaitlistTotals
	err := q.QueryRow(ctx, `
SELECT count(*),
       count(*) FILTER (WHERE status = 'promoted')
  FROM waitlist_entries
 WHERE created_at >= $1 AND created_at < $2
`, from, to).Scan(&totals.Joins, &totals.Promotions)
	if err != nil {
		return reports.WaitlistTotals{}, fmt.Errorf("waitlist totals: %w", err)
	}
	return totals, nil
}

func (r *ReportRepository) AverageSpeakerScore(ctx context.Context, from, to time.Time) (float64, error) {
	q := r.db.queryer(ctx)

	var average float64
	err := q.QueryRow(ctx, `
SELECT COALESCE(AVG(overall_score), 0)
  FROM speaker_evaluations
 WHERE created_at >= $1 AND created_at < $2
`, from, to).Scan(&average)
	if err != nil {
		return 0, fmt.Errorf("average speaker score: %w", err)
	}
	return average, nil
}
