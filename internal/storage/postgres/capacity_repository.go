package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tradeconnect/server/internal/domain/capacity"
)

var _ capacity.Repository = (*CapacityRepository)(nil)

type CapacityRepository struct {
	db *Repository
}

func (r *CapacityRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithTx(ctx, fn)
}

const capacityConfigColumns = `event_ulid, capacity, overbooking_percent, lock_timeout_minutes, waitlist_enabled, updated_at`

func scanCapacityConfig(row pgx.Row) (capacity.Config, error) {
	var cfg capacity.Config
	var updatedAt pgtype.Timestamptz
	err := row.Scan(
		&cfg.EventULID,
		&cfg.Capacity,
		&cfg.OverbookingPercent,
		&cfg.LockTimeoutMinutes,
		&cfg.WaitlistEnabled,
		&updatedAt,
	)
	if err != nil {
		return capacity.Config{}, err
	}
	cfg.UpdatedAt = updatedAt.Time
	return cfg, nil
}

func (r *CapacityRepository) GetConfig(ctx context.Context, eventULID string) (capacity.Config, error) {
	q := r.db.queryer(ctx)

	cfg, err := scanCapacityConfig(q.QueryRow(ctx, `
SELECT `+capacityConfigColumns+` FROM event_capacity_configs WHERE event_ulid = $1
`, strings.ToUpper(eventULID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return capacity.Config{}, capacity.ErrEventNotFound
		}
		return capacity.Config{}, fmt.Errorf("get capacity config: %w", err)
	}
	return cfg, nil
}

func (r *CapacityRepository) GetConfigForUpdate(ctx context.Context, eventULID string) (capacity.Config, error) {
	q := r.db.queryer(ctx)

	cfg, err := scanCapacityConfig(q.QueryRow(ctx, `
SELECT `+capacityConfigColumns+` FROM event_capacity_configs WHERE event_ulid = $1 FOR UPDATE
`, strings.ToUpper(eventULID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return capacity.Config{}, capacity.ErrEventNotFound
		}
		return capacity.Config{}, fmt.Errorf("lock capacity config: %w", err)
	}
	return cfg, nil
}

func (r *CapacityRepository) UpdateConfig(ctx context.Context, eventULID string, params capacity.ConfigUpdateParams) (capacity.Config, error) {
	q := r.db.queryer(ctx)

	cfg, err := scanCapacityConfig(q.QueryRow(ctx, `
UPDATE event_capacity_configs
   SET capacity             = COALESCE($2, capacity),
       overbooking_percent  = COALESCE($3, overbooking_percent),
       lock_timeout_minutes = COALESCE($4, lock_timeout_minutes),
       waitlist_enabled     = COALESCE($5, waitlist_enabled),
       updated_at           = now()
 WHERE event_ulid = $1
RETURNING `+capacityConfigColumns+`
`,
		strings.ToUpper(eventULID),
		params.Capacity,
		params.OverbookingPercent,
		params.LockTimeoutMinutes,
		params.WaitlistEnabled,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return capacity.Config{}, capacity.ErrEventNotFound
		}
		return capacity.Config{}, fmt.Errorf("update capacity config: %w", err)
	}
	return cfg, nil
}

const lockColumns = `id, event_ulid, holder_id, quantity, status, expires_at, idempotency_key, created_at`

func scanLock(row pgx.Row) (capacity.Lock, error) {
	var lock capacity.Lock
	var expiresAt, createdAt pgtype.Timestamptz
	err := row.Scan(
		&lock.ID,
		&lock.EventULID,
		&lock.HolderID,
		&lock.Quantity,
		&lock.Status,
		&expiresAt,
		&lock.IdempotencyKey,
		&createdAt,
	)
	if err != nil {
		return capacity.Lock{}, err
	}
	lock.ExpiresAt = expiresAt.Time
	lock.CreatedAt = createdAt.Time
	return lock, nil
}

func (r *CapacityRepository) FindLockByIdempotencyKey(ctx context.Context, eventULID, key string) (*capacity.Lock, error) {
	q := r.db.queryer(ctx)

	lock, err := scanLock(q.QueryRow(ctx, `
SELECT `+lockColumns+` FROM capacity_locks WHERE event_ulid = $1 AND idempotency_key = $2
`, strings.ToUpper(eventULID), key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find lock by idempotency key: %w", err)
	}
	return &lock, nil
}

func (r *CapacityRepository) SumActiveLocks(ctx context.Context, eventULID string, now time.Time) (int, error) {
	q := r.db.queryer(ctx)

	var sum int
	err := q.QueryRow(ctx, `
SELECT COALESCE(SUM(quantity), 0)
  FROM capacity_locks
 WHERE event_ulid = $1 AND status = 'active' AND expires_at > $2
`, strings.ToUpper(eventULID), now).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum active locks: %w", err)
	}
	return sum, nil
}

func (r *CapacityRepository) SumConfirmed(ctx context.Context, eventULID string) (int, error) {
	q := r.db.queryer(ctx)

	var sum int
	err := q.QueryRow(ctx, `
SELECT COALESCE(SUM(quantity), 0)
  FROM capacity_locks
 WHERE event_ulid = $1 AND status = 'confirmed'
`, strings.ToUpper(eventULID)).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum confirmed: %w", err)
	}
	return sum, nil
}

func (r *CapacityRepository) CreateLock(ctx context.Context, lock capacity.Lock) error {
	q := r.db.queryer(ctx)

	_, err := q.Exec(ctx, `
INSERT INTO capacity_locks (id, event_ulid, holder_id, quantity, status, expires_at, idempotency_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`,
		lock.ID,
		strings.ToUpper(lock.EventULID),
		lock.HolderID,
		lock.Quantity,
		lock.Status,
		lock.ExpiresAt,
		lock.IdempotencyKey,
		lock.CreatedAt,
	)
	if err != nil {
		// Two acquisitions racing on the same (event, idempotency key) pair
		// both pass the initial replay lookup; the loser hits the unique
		// constraint here.
		if isUniqueViolation(err) {
			return fmt.Errorf("create lock: %w", capacity.ErrIdempotencyConflict)
		}
		return fmt.Errorf("create lock: %w", err)
	}
	return nil
}

func (r *CapacityRepository) GetLock(ctx context.Context, lockID string) (*capacity.Lock, error) {
	q := r.db.queryer(ctx)

	lock, err := scanLock(q.QueryRow(ctx, `
SELECT `+lockColumns+` FROM capacity_locks WHERE id = $1
`, lockID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lock: %w", err)
	}
	return &lock, nil
}

func (r *CapacityRepository) SetLockStatus(ctx context.Context, lockID, status string) error {
	q := r.db.queryer(ctx)

	tag, err := q.Exec(ctx, `UPDATE capacity_locks SET status = $2 WHERE id = $1`, lockID, status)
	if err != nil {
		return fmt.Errorf("set lock status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return capacity.ErrLockNotFound
	}
	return nil
}

func (r *CapacityRepository) ListActiveLocks(ctx context.Context, eventULID string, now time.Time) ([]capacity.Lock, error) {
	q := r.db.queryer(ctx)

	rows, err := q.Query(ctx, `
SELECT `+lockColumns+`
  FROM capacity_locks
 WHERE event_ulid = $1 AND status = 'active' AND expires_at > $2
 ORDER BY created_at ASC
`, strings.ToUpper(eventULID), now)
	if err != nil {
		return nil, fmt.Errorf("list active locks: %w", err)
	}
	defer rows.Close()

	var locks []capacity.Lock
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		locks = append(locks, lock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active locks: %w", err)
	}
	return locks, nil
}

func (r *CapacityRepository) ExpireLocks(ctx context.Context, now time.Time) ([]capacity.Lock, error) {
	q := r.db.queryer(ctx)

	rows, err := q.Query(ctx, `
UPDATE capacity_locks
   SET status = 'expired'
 WHERE status = 'active' AND expires_at <= $1
RETURNING `+lockColumns+`
`, now)
	if err != nil {
		return nil, fmt.Errorf("expire locks: %w", err)
	}
	defer rows.Close()

	var locks []capacity.Lock
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired lock: %w", err)
		}
		locks = append(locks, lock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expire locks: %w", err)
	}
	return locks, nil
}

func (r *CapacityRepository) MaxWaitlistPosition(ctx context.Context, eventULID string) (int, error) {
	q := r.db.queryer(ctx)

	var maxPosition int
	err := q.QueryRow(ctx, `
SELECT COALESCE(MAX(position), 0) FROM waitlist_entries WHERE event_ulid = $1
`, strings.ToUpper(eventULID)).Scan(&maxPosition)
	if err != nil {
		return 0, fmt.Errorf("max waitlist position: %w", err)
	}
	return maxPosition, nil
}

const waitlistColumns = `id, event_ulid, attendee_id, email, position, status, created_at, promoted_at`

func scanWaitlistEntry(row pgx.Row) (capacity.WaitlistEntry, error) {
	var entry capacity.WaitlistEntry
	var createdAt, promotedAt pgtype.Timestamptz
	err := row.Scan(
		&entry.ID,
		&entry.EventULID,
		&entry.AttendeeID,
		&entry.Email,
		&entry.Position,
		&entry.Status,
		&createdAt,
		&promotedAt,
	)
	if err != nil {
		return capacity.WaitlistEntry{}, err
	}
	entry.CreatedAt = createdAt.Time
	if promotedAt.Valid {
		value := promotedAt.Time
		entry.PromotedAt = &value
	}
	return entry, nil
}

func (r *CapacityRepository) FindWaitlistEntry(ctx context.Context, eventULID, attendeeID string) (*capacity.WaitlistEntry, error) {
	q := r.db.queryer(ctx)

	entry, err := scanWaitlistEntry(q.QueryRow(ctx, `
SELECT `+waitlistColumns+`
  FROM waitlist_entries
 WHERE event_ulid = $1 AND attendee_id = $2 AND status = 'waiting'
`, strings.ToUpper(eventULID), attendeeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find waitlist entry: %w", err)
	}
	return &entry, nil
}

func (r *CapacityRepository) CreateWaitlistEntry(ctx context.Context, entry capacity.WaitlistEntry) error {
	q := r.db.queryer(ctx)

	_, err := q.Exec(ctx, `
INSERT INTO waitlist_entries (id, event_ulid, attendee_id, email, position, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`,
		entry.ID,
		strings.ToUpper(entry.EventULID),
		entry.AttendeeID,
		entry.Email,
		entry.Position,
		entry.Status,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create waitlist entry: %w", err)
	}
	return nil
}

func (r *CapacityRepository) GetWaitlistEntry(ctx context.Context, entryID string) (*capacity.WaitlistEntry, error) {
	q := r.db.queryer(ctx)

	entry, err := scanWaitlistEntry(q.QueryRow(ctx, `
SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = $1
`, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get waitlist entry: %w", err)
	}
	return &entry, nil
}

func (r *CapacityRepository) ListWaitlist(ctx context.Context, eventULID string) ([]capacity.WaitlistEntry, error) {
	q := r.db.queryer(ctx)

	rows, err := q.Query(ctx, `
SELECT `+waitlistColumns+`
  FROM waitlist_entries
 WHERE event_ulid = $1
 ORDER BY position ASC
`, strings.ToUpper(eventULID))
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	defer rows.Close()

	var entries []capacity.WaitlistEntry
	for rows.Next() {
		entry, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}

func (r *CapacityRepository) NextWaiting(ctx context.Context, eventULID string) (*capacity.WaitlistEntry, error) {
	q := r.db.queryer(ctx)

	entry, err := scanWaitlistEntry(q.QueryRow(ctx, `
SELECT `+waitlistColumns+`
  FROM waitlist_entries
 WHERE event_ulid = $1 AND status = 'waiting'
 ORDER BY position ASC
 LIMIT 1
`, strings.ToUpper(eventULID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("next waiting entry: %w", err)
	}
	return &entry, nil
}

func (r *CapacityRepository) SetWaitlistStatus(ctx context.Context, entryID, status string, promotedAt *time.Time) error {
	q := r.db.queryer(ctx)

	tag, err := q.Exec(ctx, `
UPDATE waitlist_entries SET status = $2, promoted_at = $3 WHERE id = $1
`, entryID, status, promotedAt)
	if err != nil {
		return fmt.Errorf("set waitlist status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return capacity.ErrWaitlistEntryNotFound
	}
	return nil
}
