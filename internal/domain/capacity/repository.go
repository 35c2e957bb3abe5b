package capacity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEventNotFound          = errors.New("event capacity config not found")
	ErrCapacityExceeded       = errors.New("capacity exceeded")
	ErrLockNotFound           = errors.New("capacity lock not found")
	ErrLockNotActive          = errors.New("capacity lock is not active")
	ErrInvalidQuantity        = errors.New("quantity must be positive")
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
	ErrIdempotencyConflict    = errors.New("idempotency key reused with different request")
	ErrWaitlistDisabled       = errors.New("waitlist disabled for event")
	ErrAlreadyWaitlisted      = errors.New("attendee already on waitlist")
	ErrWaitlistEntryNotFound  = errors.New("waitlist entry not found")
)

// Lock statuses.
const (
	LockStatusActive    = "active"
	LockStatusConfirmed = "confirmed"
	LockStatusReleased  = "released"
	LockStatusExpired   = "expired"
)

// Waitlist entry statuses.
const (
	WaitlistStatusWaiting   = "waiting"
	WaitlistStatusPromoted  = "promoted"
	WaitlistStatusCancelled = "cancelled"
)

// Config is the per-event capacity policy.
type Config struct {
	EventULID          string
	Capacity           int
	OverbookingPercent int
	LockTimeoutMinutes int
	WaitlistEnabled    bool
	UpdatedAt          time.Time
}

// EffectiveCapacity is the nominal capacity inflated by the overbooking
// percentage, floored.
func (c Config) EffectiveCapacity() int {
	return c.Capacity * (100 + c.OverbookingPercent) / 100
}

// LockTimeout returns the configured lock TTL.
func (c Config) LockTimeout() time.Duration {
	minutes := c.LockTimeoutMinutes
	if minutes <= 0 {
		minutes = 15
	}
	return time.Duration(minutes) * time.Minute
}

// Lock is a short-lived seat reservation counted against effective capacity
// until it is confirmed, released, or expires.
type Lock struct {
	ID             string
	EventULID      string
	HolderID       string
	Quantity       int
	Status         string
	ExpiresAt      time.Time
	IdempotencyKey string
	CreatedAt      time.Time
}

// WaitlistEntry is a FIFO queue slot for a full event.
type WaitlistEntry struct {
	ID         string
	EventULID  string
	AttendeeID string
	Email      string
	Position   int
	Status     string
	CreatedAt  time.Time
	PromotedAt *time.Time
}

type ConfigUpdateParams struct {
	Capacity           *int
	OverbookingPercent *int
	LockTimeoutMinutes *int
	WaitlistEnabled    *bool
}

type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetConfig(ctx context.Context, eventULID string) (Config, error)
	// GetConfigForUpdate row-locks the config so concurrent acquisitions for
	// the same event serialize.
	GetConfigForUpdate(ctx context.Context, eventULID string) (Config, error)
	UpdateConfig(ctx context.Context, eventULID string, params ConfigUpdateParams) (Config, error)

	FindLockByIdempotencyKey(ctx context.Context, eventULID, key string) (*Lock, error)
	SumActiveLocks(ctx context.Context, eventULID string, now time.Time) (int, error)
	SumConfirmed(ctx context.Context, eventULID string) (int, error)
	CreateLock(ctx context.Context, lock Lock) error
	GetLock(ctx context.Context, lockID string) (*Lock, error)
	SetLockStatus(ctx context.Context, lockID, status string) error
	ListActiveLocks(ctx context.Context, eventULID string, now time.Time) ([]Lock, error)
	// ExpireLocks transitions all overdue active locks to expired and returns
	// them so callers can trigger promotions and webhooks.
	ExpireLocks(ctx context.Context, now time.Time) ([]Lock, error)

	MaxWaitlistPosition(ctx context.Context, eventULID string) (int, error)
	FindWaitlistEntry(ctx context.Context, eventULID, attendeeID string) (*WaitlistEntry, error)
	CreateWaitlistEntry(ctx context.Context, entry WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, entryID string) (*WaitlistEntry, error)
	ListWaitlist(ctx context.Context, eventULID string) ([]WaitlistEntry, error)
	// NextWaiting returns the waiting entry with the lowest position, or nil.
	NextWaiting(ctx context.Context, eventULID string) (*WaitlistEntry, error)
	SetWaitlistStatus(ctx context.Context, entryID, status string, promotedAt *time.Time) error
}
