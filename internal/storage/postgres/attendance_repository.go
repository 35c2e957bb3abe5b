package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tradeconnect/server/internal/domain/attendance"
)

var _ attendance.Repository = (*AttendanceRepository)(nil)

type AttendanceRepository struct {
	db *Repository
}

func (r *AttendanceRepository) GetRegistration(ctx context.Context, id string) (*attendance.Registration, error) {
	q := r.db.queryer(ctx)

	var reg attendance.Registration
	var checkedInAt, createdAt pgtype.Timestamptz
	err := q.QueryRow(ctx, `
SELECT id, event_ulid, attendee_name, email, type, status, checked_in_at, created_at
  FROM registrations
 WHERE id = $1
`, id).Scan(
		&reg.ID,
		&reg.EventULID,
		&reg.AttendeeName,
		&reg.Email,
		&reg.Type,
		&reg.Status,
		&checkedInAt,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	if checkedInAt.Valid {
		value := checkedInAt.Time
		reg.CheckedInAt = &value
	}
	reg.CreatedAt = createdAt.Time
	return &reg, nil
}

func (r *AttendanceRepository) SetCheckedIn(ctx context.Context, id string, at time.Time) error {
	q := r.db.queryer(ctx)

	tag, err := q.Exec(ctx, `
UPDATE registrations SET checked_in_at = $2 WHERE id = $1 AND checked_in_at IS NULL
`, id, at)
	if err != nil {
		return fmt.Errorf("set checked in: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already checked in; the service decided this is a
		// legal idempotent repeat before calling us, so only missing is fatal.
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM registrations WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("set checked in: %w", err)
		}
		if !exists {
			return attendance.ErrRegistrationNotFound
		}
	}
	return nil
}

func (r *AttendanceRepository) Report(ctx context.Context, eventULID string) (attendance.Report, error) {
	q := r.db.queryer(ctx)

	report := attendance.Report{EventULID: strings.ToUpper(eventULID), ByType: map[string]int{}}

	err := q.QueryRow(ctx, `
SELECT count(*) FILTER (WHERE status = 'confirmed'),
       count(*) FILTER (WHERE status = 'confirmed' AND checked_in_at IS NOT NULL)
  FROM registrations
 WHERE event_ulid = $1
`, report.EventULID).Scan(&report.Registered, &report.CheckedIn)
	if err != nil {
		return attendance.Report{}, fmt.Errorf("attendance totals: %w", err)
	}

	rows, err := q.Query(ctx, `
SELECT type, count(*)
  FROM registrations
 WHERE event_ulid = $1 AND status = 'confirmed' AND checked_in_at IS NOT NULL
 GROUP BY type
`, report.EventULID)
	if err != nil {
		return attendance.Report{}, fmt.Errorf("attendance by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var regType string
		var count int
		if err := rows.Scan(&regType, &count); err != nil {
			return attendance.Report{}, fmt.Errorf("scan attendance type: %w", err)
		}
		report.ByType[regType] = count
	}
	if err := rows.Err(); err != nil {
		return attendance.Report{}, fmt.Errorf("attendance by type: %w", err)
	}
	return report, nil
}
