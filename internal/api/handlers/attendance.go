package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/audit"
	"github.com/tradeconnect/server/internal/domain/attendance"
	"github.com/tradeconnect/server/internal/metrics"
)

type AttendanceHandler struct {
	Service *attendance.Service
	Emitter eventEmitter
	Audit   *audit.Service
	Msg     localizer
	Env     string
}

func NewAttendanceHandler(service *attendance.Service, emitter eventEmitter, auditSvc *audit.Service, msg localizer, env string) *AttendanceHandler {
	return &AttendanceHandler{Service: service, Emitter: emitter, Audit: auditSvc, Msg: msg, Env: env}
}

type registrationDTO struct {
	ID           string     `json:"id"`
	EventID      string     `json:"eventId"`
	AttendeeName string     `json:"attendeeName"`
	Email        string     `json:"email"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	CheckedInAt  *time.Time `json:"checkedInAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func toRegistrationDTO(reg attendance.Registration) registrationDTO {
	return registrationDTO{
		ID:           reg.ID,
		EventID:      reg.EventULID,
		AttendeeName: reg.AttendeeName,
		Email:        reg.Email,
		Type:         reg.Type,
		Status:       reg.Status,
		CheckedInAt:  reg.CheckedInAt,
		CreatedAt:    reg.CreatedAt,
	}
}

func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	registrationID := pathParam(r, "id")
	reg, err := h.Service.CheckIn(r.Context(), registrationID)
	if err != nil {
		switch {
		case errors.Is(err, attendance.ErrRegistrationNotFound):
			respond.Error(w, r, respond.CodeRegistrationNotFound, "", err, h.Env)
		case errors.Is(err, attendance.ErrRegistrationCancelled):
			respond.Error(w, r, respond.CodeRegistrationCancelled, resolveMsg(h.Msg, r, "checkin.cancelled"), err, h.Env)
		default:
			respond.Internal(w, r, err, h.Env)
		}
		return
	}

	metrics.CheckIns.Inc()
	if h.Audit != nil {
		h.Audit.Success(r, "attendance.checkin", "registration", registrationID, map[string]string{"event": reg.EventULID})
	}
	h.emit(r.Context(), "attendance.checked_in", toRegistrationDTO(*reg))
	respond.OK(w, http.StatusOK, resolveMsg(h.Msg, r, "checkin.done"), toRegistrationDTO(*reg))
}

func (h *AttendanceHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.Report(r.Context(), pathParam(r, "id"))
	if err != nil {
		respond.Internal(w, r, err, h.Env)
		return
	}
	respond.OK(w, http.StatusOK, "", report)
}

func (h *AttendanceHandler) emit(ctx context.Context, eventType string, payload any) {
	if h.Emitter != nil {
		h.Emitter.Emit(ctx, eventType, payload)
	}
}
