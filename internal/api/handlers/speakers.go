package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/audit"
	"github.com/tradeconnect/server/internal/domain/speakers"
)

// eventEmitter fans handler-level domain events out to webhook subscribers.
type eventEmitter interface {
	Emit(ctx context.Context, eventType string, payload any)
}

type SpeakersHandler struct {
	Service *speakers.Service
	Emitter eventEmitter
	Audit   *audit.Service
	Msg     localizer
	Env     string
}

func NewSpeakersHandler(service *speakers.Service, emitter eventEmitter, auditSvc *audit.Service, msg localizer, env string) *SpeakersHandler {
	return &SpeakersHandler{Service: service, Emitter: emitter, Audit: auditSvc, Msg: msg, Env: env}
}

type speakerDTO struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Bio       string    `json:"bio,omitempty"`
	Category  string    `json:"category"`
	BaseRate  float64   `json:"baseRate"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toSpeakerDTO(s speakers.Speaker) speakerDTO {
	return speakerDTO{
		ID:        s.ULID,
		FirstName: s.FirstName,
		LastName:  s.LastName,
		Email:     s.Email,
		Bio:       s.Bio,
		Category:  s.Category,
		BaseRate:  s.BaseRate,
		Verified:  s.Verified,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

type speakerListDTO struct {
	Items      []speakerDTO `json:"items"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

func (h *SpeakersHandler) List(w http.ResponseWriter, r *http.Request) {
	filters, pagination, err := speakers.ParseFilters(r.URL.Query())
	if err != nil {
		respond.Error(w, r, respond.CodeValidation, err.Error(), err, h.Env)
		return
	}

	result, err := h.Service.List(r.Context(), filters, pagination)
	if err != nil {
		respond.Internal(w, r, err, h.Env)
		return
	}

	items := make([]speakerDTO, 0, len(result.Speakers))
	for _, s := range result.Speakers {
		items = append(items, toSpeakerDTO(s))
	}
	respond.OK(w, http.StatusOK, "", speakerListDTO{Items: items, NextCursor: result.NextCursor})
}

func (h *SpeakersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input speakers.CreateInput
	if err := decodeJSON(r, &input); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}

	speaker, err := h.Service.Create(r.Context(), input)
	if err != nil {
		if fields := speakers.FieldErrors(err); fields != nil {
			respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env, respond.WithData(fields))
			return
		}
		respond.Internal(w, r, err, h.Env)
		return
	}

	h.auditSuccess(r, "speaker.create", speaker.ULID, nil)
	h.emit(r.Context(), "speaker.created", toSpeakerDTO(*speaker))
	respond.OK(w, http.StatusCreated, resolveMsg(h.Msg, r, "speaker.created"), toSpeakerDTO(*speaker))
}

func (h *SpeakersHandler) Get(w http.ResponseWriter, r *http.Request) {
	speaker, err := h.Service.GetByULID(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, "", toSpeakerDTO(*speaker))
}

func (h *SpeakersHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input speakers.UpdateInput
	if err := decodeJSON(r, &input); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}

	ulid := pathParam(r, "id")
	speaker, err := h.Service.Update(r.Context(), ulid, input)
	if err != nil {
		if fields := speakers.FieldErrors(err); fields != nil {
			respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env, respond.WithData(fields))
			return
		}
		h.writeError(w, r, err)
		return
	}

	h.auditSuccess(r, "speaker.update", ulid, nil)
	h.emit(r.Context(), "speaker.updated", toSpeakerDTO(*speaker))
	respond.OK(w, http.StatusOK, resolveMsg(h.Msg, r, "speaker.updated"), toSpeakerDTO(*speaker))
}

func (h *SpeakersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ulid := pathParam(r, "id")
	if err := h.Service.Delete(r.Context(), ulid); err != nil {
		if errors.Is(err, speakers.ErrHasFutureEvents) {
			h.auditFailure(r, "speaker.delete", ulid, map[string]string{"reason": "future events"})
		}
		h.writeError(w, r, err)
		return
	}

	h.auditSuccess(r, "speaker.delete", ulid, nil)
	h.emit(r.Context(), "speaker.deleted", map[string]any{"id": ulid})
	respond.OK(w, http.StatusOK, resolveMsg(h.Msg, r, "speaker.deleted"), nil)
}

func (h *SpeakersHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ulid := pathParam(r, "id")
	speaker, err := h.Service.Verify(r.Context(), ulid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.auditSuccess(r, "speaker.verify", ulid, nil)
	h.emit(r.Context(), "speaker.updated", toSpeakerDTO(*speaker))
	respond.OK(w, http.StatusOK, resolveMsg(h.Msg, r, "speaker.verified"), toSpeakerDTO(*speaker))
}

type availabilityDTO struct {
	ID        string `json:"id"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Notes     string `json:"notes,omitempty"`
}

func (h *SpeakersHandler) AddAvailability(w http.ResponseWriter, r *http.Request) {
	var input speakers.AvailabilityInput
	if err := decodeJSON(r, &input); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}

	ulid := pathParam(r, "id")
	block, err := h.Service.AddAvailability(r.Context(), ulid, input)
	if err != nil {
		switch {
		case errors.Is(err, speakers.ErrEndBeforeStart):
			respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "availability.end_before_start"), err, h.Env)
		case errors.Is(err, speakers.ErrAvailabilityConflict):
			respond.Error(w, r, respond.CodeAvailabilityConflict, resolveMsg(h.Msg, r, "availability.conflict"), err, h.Env)
		default:
			h.writeError(w, r, err)
		}
		return
	}

	h.auditSuccess(r, "speaker.availability.add", ulid, map[string]string{
		"start": input.StartDate,
		"end":   input.EndDate,
	})
	respond.OK(w, http.StatusCreated, "", availabilityDTO{
		ID:        block.ID,
		StartDate: block.StartDate.Format("2006-01-02"),
		EndDate:   block.EndDate.Format("2006-01-02"),
		Notes:     block.Notes,
	})
}

type evaluationDTO struct {
	ID            string `json:"id"`
	EventID       string `json:"eventId"`
	Evaluator     string `json:"evaluator"`
	ContentScore  int    `json:"contentScore"`
	DeliveryScore int    `json:"deliveryScore"`
	MaterialScore int    `json:"materialScore"`
	OverallScore  int    `json:"overallScore"`
	Comments      string `json:"comments,omitempty"`
}

func (h *SpeakersHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var input speakers.EvaluationInput
	if err := decodeJSON(r, &input); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}

	ulid := pathParam(r, "id")
	eval, err := h.Service.Evaluate(r.Context(), ulid, input)
	if err != nil {
		if fields := speakers.FieldErrors(err); fields != nil {
			respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "evaluation.score_out_of_range"), err, h.Env, respond.WithData(fields))
			return
		}
		h.writeError(w, r, err)
		return
	}

	h.auditSuccess(r, "speaker.evaluate", ulid, map[string]string{"event": input.EventID})
	respond.OK(w, http.StatusCreated, resolveMsg(h.Msg, r, "evaluation.created"), evaluationDTO{
		ID:            eval.ID,
		EventID:       eval.EventULID,
		Evaluator:     eval.Evaluator,
		ContentScore:  eval.ContentScore,
		DeliveryScore: eval.DeliveryScore,
		MaterialScore: eval.MaterialScore,
		OverallScore:  eval.OverallScore,
		Comments:      eval.Comments,
	})
}

func (h *SpeakersHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var filterErr speakers.FilterError
	switch {
	case errors.Is(err, speakers.ErrNotFound):
		respond.Error(w, r, respond.CodeSpeakerNotFound, resolveMsg(h.Msg, r, "speaker.not_found"), err, h.Env)
	case errors.Is(err, speakers.ErrHasFutureEvents):
		respond.Error(w, r, respond.CodeSpeakerHasFutureEvents, resolveMsg(h.Msg, r, "speaker.has_future_events"), err, h.Env)
	case errors.Is(err, speakers.ErrSpeakerEventNotFound):
		respond.Error(w, r, respond.CodeSpeakerEventNotFound, resolveMsg(h.Msg, r, "speaker.event_not_found"), err, h.Env)
	case errors.As(err, &filterErr):
		respond.Error(w, r, respond.CodeValidation, err.Error(), err, h.Env)
	default:
		respond.Internal(w, r, err, h.Env)
	}
}

func (h *SpeakersHandler) emit(ctx context.Context, eventType string, payload any) {
	if h.Emitter != nil {
		h.Emitter.Emit(ctx, eventType, payload)
	}
}

func (h *SpeakersHandler) auditSuccess(r *http.Request, action, resourceID string, details map[string]string) {
	if h.Audit != nil {
		h.Audit.Success(r, action, "speaker", resourceID, details)
	}
}

func (h *SpeakersHandler) auditFailure(r *http.Request, action, resourceID string, details map[string]string) {
	if h.Audit != nil {
		h.Audit.Failure(r, action, "speaker", resourceID, details)
	}
}
