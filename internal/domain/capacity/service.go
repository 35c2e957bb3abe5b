// Package capacity enforces per-event seat limits: short-lived locks held
// while a registration is paid, an overbooking margin on top of nominal
// capacity, and a FIFO waitlist promoted as seats free up.
//
// All capacity math happens inside a single transaction that row-locks the
// event's config row, so concurrent acquisitions for the same event
// serialize and the invariant confirmed+active <= effective capacity holds.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tradeconnect/server/internal/clock"
)

// PromotionNotifier receives waitlist promotions so the caller can fan out
// email and webhook notifications without the capacity package knowing about
// either.
type PromotionNotifier interface {
	WaitlistPromoted(ctx context.Context, entry WaitlistEntry, lock Lock)
}

// NopNotifier discards promotion notifications.
type NopNotifier struct{}

func (NopNotifier) WaitlistPromoted(context.Context, WaitlistEntry, Lock) {}

type Service struct {
	repo     Repository
	clock    clock.Clock
	notifier PromotionNotifier
	logger   zerolog.Logger
}

func NewService(repo Repository, clk clock.Clock, notifier PromotionNotifier, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{repo: repo, clock: clk, notifier: notifier, logger: logger}
}

func (s *Service) GetConfig(ctx context.Context, eventULID string) (Config, error) {
	return s.repo.GetConfig(ctx, eventULID)
}

func (s *Service) UpdateConfig(ctx context.Context, eventULID string, params ConfigUpdateParams) (Config, error) {
	if params.Capacity != nil && *params.Capacity < 0 {
		return Config{}, fmt.Errorf("%w: capacity must be >= 0", ErrInvalidQuantity)
	}
	if params.OverbookingPercent != nil && (*params.OverbookingPercent < 0 || *params.OverbookingPercent > 100) {
		return Config{}, fmt.Errorf("%w: overbooking percent must be 0-100", ErrInvalidQuantity)
	}
	if params.LockTimeoutMinutes != nil && *params.LockTimeoutMinutes < 1 {
		return Config{}, fmt.Errorf("%w: lock timeout must be >= 1 minute", ErrInvalidQuantity)
	}
	return s.repo.UpdateConfig(ctx, eventULID, params)
}

type AcquireInput struct {
	EventULID      string
	HolderID       string
	Quantity       int
	IdempotencyKey string
}

// AcquireLock reserves seats against the event's effective capacity. When the
// same idempotency key is replayed with the same quantity the original lock
// is returned; a different quantity is a conflict.
func (s *Service) AcquireLock(ctx context.Context, in AcquireInput) (Lock, error) {
	if in.Quantity <= 0 {
		return Lock{}, ErrInvalidQuantity
	}
	if in.IdempotencyKey == "" {
		return Lock{}, ErrIdempotencyKeyRequired
	}

	now := s.clock.Now()
	var result Lock

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if existing, err := s.repo.FindLockByIdempotencyKey(txCtx, in.EventULID, in.IdempotencyKey); err != nil {
			return err
		} else if existing != nil {
			if existing.Quantity != in.Quantity {
				return ErrIdempotencyConflict
			}
			result = *existing
			return nil
		}

		cfg, err := s.repo.GetConfigForUpdate(txCtx, in.EventULID)
		if err != nil {
			return err
		}

		activeQty, err := s.repo.SumActiveLocks(txCtx, in.EventULID, now)
		if err != nil {
			return err
		}
		confirmedQty, err := s.repo.SumConfirmed(txCtx, in.EventULID)
		if err != nil {
			return err
		}

		available := cfg.EffectiveCapacity() - activeQty - confirmedQty
		if in.Quantity > available {
			return ErrCapacityExceeded
		}

		lock := Lock{
			ID:             uuid.NewString(),
			EventULID:      in.EventULID,
			HolderID:       in.HolderID,
			Quantity:       in.Quantity,
			Status:         LockStatusActive,
			ExpiresAt:      now.Add(cfg.LockTimeout()),
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      now,
		}

		if err := s.repo.CreateLock(txCtx, lock); err != nil {
			return err
		}

		result = lock
		return nil
	})
	if errors.Is(err, ErrIdempotencyConflict) {
		// A concurrent acquisition with the same key won the insert race, or
		// the initial lookup saw a different quantity. The conflicting insert
		// aborted the transaction, so re-read outside it: an identical replay
		// returns the winner's lock, anything else is a real conflict.
		existing, findErr := s.repo.FindLockByIdempotencyKey(ctx, in.EventULID, in.IdempotencyKey)
		if findErr != nil {
			return Lock{}, findErr
		}
		if existing != nil && existing.Quantity == in.Quantity {
			return *existing, nil
		}
		return Lock{}, ErrIdempotencyConflict
	}
	if err != nil {
		return Lock{}, err
	}

	return result, nil
}

// ConfirmLock turns an active, unexpired lock into confirmed seats.
func (s *Service) ConfirmLock(ctx context.Context, lockID string) (Lock, error) {
	now := s.clock.Now()
	var result Lock

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		lock, err := s.repo.GetLock(txCtx, lockID)
		if err != nil {
			return err
		}
		if lock == nil {
			return ErrLockNotFound
		}
		if lock.Status != LockStatusActive || !lock.ExpiresAt.After(now) {
			return ErrLockNotActive
		}
		if err := s.repo.SetLockStatus(txCtx, lockID, LockStatusConfirmed); err != nil {
			return err
		}
		lock.Status = LockStatusConfirmed
		result = *lock
		return nil
	})
	if err != nil {
		return Lock{}, err
	}
	return result, nil
}

// ReleaseLock frees an active lock's seats and promotes from the waitlist.
func (s *Service) ReleaseLock(ctx context.Context, lockID string) (Lock, error) {
	now := s.clock.Now()
	var result Lock

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		lock, err := s.repo.GetLock(txCtx, lockID)
		if err != nil {
			return err
		}
		if lock == nil {
			return ErrLockNotFound
		}
		if lock.Status != LockStatusActive || !lock.ExpiresAt.After(now) {
			return ErrLockNotActive
		}
		if err := s.repo.SetLockStatus(txCtx, lockID, LockStatusReleased); err != nil {
			return err
		}
		lock.Status = LockStatusReleased
		result = *lock
		return nil
	})
	if err != nil {
		return Lock{}, err
	}

	if err := s.PromoteNext(ctx, result.EventULID); err != nil {
		// Promotion is best effort after a release; seats stay free.
		s.logger.Warn().Err(err).Str("event", result.EventULID).Msg("waitlist promotion after release failed")
	}
	return result, nil
}

// ActiveLocks lists unexpired active locks for an event.
func (s *Service) ActiveLocks(ctx context.Context, eventULID string) ([]Lock, error) {
	return s.repo.ListActiveLocks(ctx, eventULID, s.clock.Now())
}

type JoinWaitlistInput struct {
	EventULID  string
	AttendeeID string
	Email      string
}

// JoinWaitlist appends an attendee to the event's FIFO waitlist. Position is
// assigned under the config row lock so concurrent joins get distinct
// positions.
func (s *Service) JoinWaitlist(ctx context.Context, in JoinWaitlistInput) (WaitlistEntry, error) {
	now := s.clock.Now()
	var result WaitlistEntry

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		cfg, err := s.repo.GetConfigForUpdate(txCtx, in.EventULID)
		if err != nil {
			return err
		}
		if !cfg.WaitlistEnabled {
			return ErrWaitlistDisabled
		}

		if existing, err := s.repo.FindWaitlistEntry(txCtx, in.EventULID, in.AttendeeID); err != nil {
			return err
		} else if existing != nil && existing.Status == WaitlistStatusWaiting {
			return ErrAlreadyWaitlisted
		}

		maxPos, err := s.repo.MaxWaitlistPosition(txCtx, in.EventULID)
		if err != nil {
			return err
		}

		entry := WaitlistEntry{
			ID:         uuid.NewString(),
			EventULID:  in.EventULID,
			AttendeeID: in.AttendeeID,
			Email:      in.Email,
			Position:   maxPos + 1,
			Status:     WaitlistStatusWaiting,
			CreatedAt:  now,
		}
		if err := s.repo.CreateWaitlistEntry(txCtx, entry); err != nil {
			return err
		}
		result = entry
		return nil
	})
	if err != nil {
		return WaitlistEntry{}, err
	}
	return result, nil
}

// Waitlist lists an event's waitlist ordered by position.
func (s *Service) Waitlist(ctx context.Context, eventULID string) ([]WaitlistEntry, error) {
	return s.repo.ListWaitlist(ctx, eventULID)
}

// CancelWaitlistEntry removes an entry from the queue. Positions of later
// entries are left dense-but-gapped; promotion order only depends on relative
// order, not contiguity.
func (s *Service) CancelWaitlistEntry(ctx context.Context, entryID string) error {
	entry, err := s.repo.GetWaitlistEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrWaitlistEntryNotFound
	}
	if entry.Status != WaitlistStatusWaiting {
		return ErrWaitlistEntryNotFound
	}
	return s.repo.SetWaitlistStatus(ctx, entryID, WaitlistStatusCancelled, nil)
}

// PromoteNext promotes the head of the waitlist if capacity allows: it
// acquires a lock on the promoted attendee's behalf and marks the entry
// promoted. Returns nil when the waitlist is empty or capacity is exhausted.
func (s *Service) PromoteNext(ctx context.Context, eventULID string) error {
	now := s.clock.Now()
	var (
		promoted *WaitlistEntry
		lock     Lock
	)

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		cfg, err := s.repo.GetConfigForUpdate(txCtx, eventULID)
		if err != nil {
			return err
		}

		entry, err := s.repo.NextWaiting(txCtx, eventULID)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}

		activeQty, err := s.repo.SumActiveLocks(txCtx, eventULID, now)
		if err != nil {
			return err
		}
		confirmedQty, err := s.repo.SumConfirmed(txCtx, eventULID)
		if err != nil {
			return err
		}
		if cfg.EffectiveCapacity()-activeQty-confirmedQty < 1 {
			return nil
		}

		lock = Lock{
			ID:             uuid.NewString(),
			EventULID:      eventULID,
			HolderID:       entry.AttendeeID,
			Quantity:       1,
			Status:         LockStatusActive,
			ExpiresAt:      now.Add(cfg.LockTimeout()),
			IdempotencyKey: "waitlist:" + entry.ID,
			CreatedAt:      now,
		}
		if err := s.repo.CreateLock(txCtx, lock); err != nil {
			return err
		}

		promotedAt := now
		if err := s.repo.SetWaitlistStatus(txCtx, entry.ID, WaitlistStatusPromoted, &promotedAt); err != nil {
			return err
		}
		entry.Status = WaitlistStatusPromoted
		entry.PromotedAt = &promotedAt
		promoted = entry
		return nil
	})
	if err != nil {
		return err
	}

	if promoted != nil {
		s.logger.Info().
			Str("event", eventULID).
			Str("entry", promoted.ID).
			Int("position", promoted.Position).
			Msg("waitlist entry promoted")
		s.notifier.WaitlistPromoted(ctx, *promoted, lock)
	}
	return nil
}

// SweepExpiredLocks transitions overdue locks to expired and promotes
// waitlisted attendees into the capacity they freed. Returns the locks it
// expired. Called periodically from the background job.
func (s *Service) SweepExpiredLocks(ctx context.Context) ([]Lock, error) {
	expired, err := s.repo.ExpireLocks(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("expire locks: %w", err)
	}

	seen := make(map[string]struct{}, len(expired))
	for _, lock := range expired {
		if _, ok := seen[lock.EventULID]; ok {
			continue
		}
		seen[lock.EventULID] = struct{}{}
		if err := s.PromoteNext(ctx, lock.EventULID); err != nil {
			s.logger.Warn().Err(err).Str("event", lock.EventULID).Msg("waitlist promotion after expiry failed")
		}
	}
	return expired, nil
}

// Availability reports the current seat arithmetic for an event.
type Availability struct {
	EventULID         string    `json:"eventId"`
	Capacity          int       `json:"capacity"`
	EffectiveCapacity int       `json:"effectiveCapacity"`
	Confirmed         int       `json:"confirmed"`
	Locked            int       `json:"locked"`
	Available         int       `json:"available"`
	AsOf              time.Time `json:"asOf"`
}

func (s *Service) AvailabilityFor(ctx context.Context, eventULID string) (Availability, error) {
	now := s.clock.Now()

	cfg, err := s.repo.GetConfig(ctx, eventULID)
	if err != nil {
		return Availability{}, err
	}
	locked, err := s.repo.SumActiveLocks(ctx, eventULID, now)
	if err != nil {
		return Availability{}, err
	}
	confirmed, err := s.repo.SumConfirmed(ctx, eventULID)
	if err != nil {
		return Availability{}, err
	}

	effective := cfg.EffectiveCapacity()
	return Availability{
		EventULID:         eventULID,
		Capacity:          cfg.Capacity,
		EffectiveCapacity: effective,
		Confirmed:         confirmed,
		Locked:            locked,
		Available:         effective - confirmed - locked,
		AsOf:              now,
	}, nil
}
