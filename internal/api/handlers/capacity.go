package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/audit"
	"github.com/tradeconnect/server/internal/domain/capacity"
	"github.com/tradeconnect/server/internal/metrics"
)

type CapacityHandler struct {
	Service *capacity.Service
	Emitter eventEmitter
	Audit   *audit.Service
	Msg     localizer
	Env     string
}

func NewCapacityHandler(service *capacity.Service, emitter eventEmitter, auditSvc *audit.Service, msg localizer, env string) *CapacityHandler {
	return &CapacityHandler{Service: service, Emitter: emitter, Audit: auditSvc, Msg: msg, Env: env}
}

type capacityConfigDTO struct {
	EventID            string    `json:"eventId"`
	Capacity           int       `json:"capacity"`
	OverbookingPercent int       `json:"overbookingPercent"`
	EffectiveCapacity  int       `json:"effectiveCapacity"`
	LockTimeoutMinutes int       `json:"lockTimeoutMinutes"`
	WaitlistEnabled    bool      `json:"waitlistEnabled"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func toCapacityConfigDTO(cfg capacity.Config) capacityConfigDTO {
	return capacityConfigDTO{
		EventID:            cfg.EventULID,
		Capacity:           cfg.Capacity,
		OverbookingPercent: cfg.OverbookingPercent,
		EffectiveCapacity:  cfg.EffectiveCapacity(),
		LockTimeoutMinutes: cfg.LockTimeoutMinutes,
		WaitlistEnabled:    cfg.WaitlistEnabled,
		UpdatedAt:          cfg.UpdatedAt,
	}
}

type lockDTO struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	HolderID  string    `json:"holderId"`
	Quantity  int       `json:"quantity"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func toLockDTO(lock capacity.Lock) lockDTO {
	return lockDTO{
		ID:        lock.ID,
		EventID:   lock.EventULID,
		HolderID:  lock.HolderID,
		Quantity:  lock.Quantity,
		Status:    lock.Status,
		ExpiresAt: lock.ExpiresAt,
		CreatedAt: lock.CreatedAt,
	}
}

type waitlistEntryDTO struct {
	ID         string     `json:"id"`
	EventID    string     `json:"eventId"`
	AttendeeID string     `json:"attendeeId"`
	Email      string     `json:"email"`
	Position   int        `json:"position"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	PromotedAt *time.Time `json:"promotedAt,omitempty"`
}

func toWaitlistEntryDTO(entry capacity.WaitlistEntry) waitlistEntryDTO {
	return waitlistEntryDTO{
		ID:         entry.ID,
		EventID:    entry.EventULID,
		AttendeeID: entry.AttendeeID,
		Email:      entry.Email,
		Position:   entry.Position,
		Status:     entry.Status,
		CreatedAt:  entry.CreatedAt,
		PromotedAt: entry.PromotedAt,
	}
}

func (h *CapacityHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Service.GetConfig(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, "", toCapacityConfigDTO(cfg))
}

type capacityConfigUpdateRequest struct {
	Capacity           *int  `json:"capacity"`
	OverbookingPercent *int  `json:"overbookingPercent"`
	LockTimeoutMinutes *int  `json:"lockTimeoutMinutes"`
	WaitlistEnabled    *bool `json:"waitlistEnabled"`
}

func (h *CapacityHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req capacityConfigUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}

	eventULID := pathParam(r, "id")
	cfg, err := h.Service.UpdateConfig(r.Context(), eventULID, capacity.ConfigUpdateParams{
		Capacity:           req.Capacity,
		OverbookingPercent: req.OverbookingPercent,
		LockTimeoutMinutes: req.LockTimeoutMinutes,
		WaitlistEnabled:    req.WaitlistEnabled,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.auditSuccess(r, "capacity.config.update", eventULID, nil)
	respond.OK(w, http.StatusOK, "", toCapacityConfigDTO(cfg))
}

func (h *CapacityHandler) Availability(w http.ResponseWriter, r *http.Request) {
	availability, err := h.Service.AvailabilityFor(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, "", availability)
}

type acquireLockRequest struct {
	HolderID string `json:"holderId"`
	Quantity int    `json:"quantity"`
}

func (h *CapacityHandler) AcquireLock(w http.ResponseWriter, r *http.Request) {
	var req acquireLockRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}

	eventULID := pathParam(r, "id")
	lock, err := h.Service.AcquireLock(r.Context(), capacity.AcquireInput{
		EventULID:      eventULID,
		HolderID:       req.HolderID,
		Quantity:       req.Quantity,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		if errors.Is(err, capacity.ErrCapacityExceeded) {
			metrics.CapacityLockAttempts.WithLabelValues("capacity_exceeded").Inc()
		} else {
			metrics.CapacityLockAttempts.WithLabelValues("error").Inc()
		}
		h.writeError(w, r, err)
		return
	}

	metrics.CapacityLockAttempts.WithLabelValues("acquired").Inc()
	h.auditSuccess(r, "capacity.lock.acquire", lock.ID, map[string]string{"event": eventULID})
	respond.OK(w, http.StatusCreated, resolveMsg(h.Msg, r, "capacity.lock_acquired"), toLockDTO(lock))
}

func (h *CapacityHandler) ConfirmLock(w http.ResponseWriter, r *http.Request) {
	lockID := pathParam(r, "lockId")
	lock, err := h.Service.ConfirmLock(r.Context(), lockID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.auditSuccess(r, "capacity.lock.confirm", lockID, map[string]string{"event": lock.EventULID})
	h.emit(r.Context(), "registration.confirmed", toLockDTO(lock))
	respond.OK(w, http.StatusOK, "", toLockDTO(lock))
}

func (h *CapacityHandler) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	lockID := pathParam(r, "lockId")
	lock, err := h.Service.ReleaseLock(r.Context(), lockID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.auditSuccess(r, "capacity.lock.release", lockID, map[string]string{"event": lock.EventULID})
	respond.OK(w, http.StatusOK, resolveMsg(h.Msg, r, "capacity.lock_released"), toLockDTO(lock))
}

func (h *CapacityHandler) ActiveLocks(w http.ResponseWriter, r *http.Request) {
	locks, err := h.Service.ActiveLocks(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]lockDTO, 0, len(locks))
	for _, lock := range locks {
		items = append(items, toLockDTO(lock))
	}
	respond.OK(w, http.StatusOK, "", items)
}

type joinWaitlistRequest struct {
	AttendeeID string `json:"attendeeId"`
	Email      string `json:"email"`
}

func (h *CapacityHandler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req joinWaitlistRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}

	eventULID := pathParam(r, "id")
	entry, err := h.Service.JoinWaitlist(r.Context(), capacity.JoinWaitlistInput{
		EventULID:  eventULID,
		AttendeeID: req.AttendeeID,
		Email:      req.Email,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.auditSuccess(r, "waitlist.join", entry.ID, map[string]string{"event": eventULID})
	respond.OK(w, http.StatusCreated, resolveMsg(h.Msg, r, "waitlist.joined"), toWaitlistEntryDTO(entry))
}

func (h *CapacityHandler) Waitlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.Waitlist(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]waitlistEntryDTO, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toWaitlistEntryDTO(entry))
	}
	respond.OK(w, http.StatusOK, "", items)
}

func (h *CapacityHandler) CancelWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	entryID := pathParam(r, "entryId")
	if err := h.Service.CancelWaitlistEntry(r.Context(), entryID); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.auditSuccess(r, "waitlist.cancel", entryID, nil)
	respond.OK(w, http.StatusOK, "", nil)
}

func (h *CapacityHandler) PromoteNext(w http.ResponseWriter, r *http.Request) {
	eventULID := pathParam(r, "id")
	if err := h.Service.PromoteNext(r.Context(), eventULID); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.auditSuccess(r, "waitlist.promote", eventULID, nil)
	respond.OK(w, http.StatusOK, resolveMsg(h.Msg, r, "waitlist.promoted"), nil)
}

func (h *CapacityHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, capacity.ErrEventNotFound):
		respond.Error(w, r, respond.CodeEventNotFound, "", err, h.Env)
	case errors.Is(err, capacity.ErrCapacityExceeded):
		respond.Error(w, r, respond.CodeCapacityExceeded, resolveMsg(h.Msg, r, "capacity.exceeded"), err, h.Env)
	case errors.Is(err, capacity.ErrLockNotFound), errors.Is(err, capacity.ErrLockNotActive):
		respond.Error(w, r, respond.CodeLockNotFound, "", err, h.Env)
	case errors.Is(err, capacity.ErrInvalidQuantity), errors.Is(err, capacity.ErrIdempotencyKeyRequired):
		respond.Error(w, r, respond.CodeValidation, err.Error(), err, h.Env)
	case errors.Is(err, capacity.ErrIdempotencyConflict):
		respond.Error(w, r, respond.CodeIdempotencyConflict, "", err, h.Env)
	case errors.Is(err, capacity.ErrWaitlistDisabled):
		respond.Error(w, r, respond.CodeValidation, err.Error(), err, h.Env)
	case errors.Is(err, capacity.ErrAlreadyWaitlisted):
		respond.Error(w, r, respond.CodeIdempotencyConflict, err.Error(), err, h.Env)
	case errors.Is(err, capacity.ErrWaitlistEntryNotFound):
		respond.Error(w, r, respond.CodeWaitlistEntryNotFound, "", err, h.Env)
	default:
		respond.Internal(w, r, err, h.Env)
	}
}

func (h *CapacityHandler) emit(ctx context.Context, eventType string, payload any) {
	if h.Emitter != nil {
		h.Emitter.Emit(ctx, eventType, payload)
	}
}

func (h *CapacityHandler) auditSuccess(r *http.Request, action, resourceID string, details map[string]string) {
	if h.Audit != nil {
		h.Audit.Success(r, action, "capacity", resourceID, details)
	}
}
