package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/domain/reports"
)

type ReportsHandler struct {
	Service *reports.Service
	Env     string
}

func NewReportsHandler(service *reports.Service, env string) *ReportsHandler {
	return &ReportsHandler{Service: service, Env: env}
}

// reportRange reads from/to query parameters as dates or RFC 3339
// timestamps. Missing values default to the trailing 30 days.
func reportRange(r *http.Request) (time.Time, time.Time, error) {
	parse := func(raw string) (time.Time, error) {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			return t, nil
		}
		return time.Parse(time.RFC3339, raw)
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := parse(raw)
		if err != nil {
			return from, to, errors.New("invalid from: expected date or RFC 3339 timestamp")
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := parse(raw)
		if err != nil {
			return from, to, errors.New("invalid to: expected date or RFC 3339 timestamp")
		}
		to = parsed
	}
	return from, to, nil
}

func (h *ReportsHandler) Financial(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportRange(r)
	if err != nil {
		respond.Error(w, r, respond.CodeValidation, err.Error(), err, h.Env)
		return
	}

	report, err := h.Service.Financial(r.Context(), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, "", report)
}

func (h *ReportsHandler) KPIs(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportRange(r)
	if err != nil {
		respond.Error(w, r, respond.CodeValidation, err.Error(), err, h.Env)
		return
	}

	report, err := h.Service.KPIs(r.Context(), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, "", report)
}

func (h *ReportsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, reports.ErrInvalidRange) {
		respond.Error(w, r, respond.CodeValidation, err.Error(), err, h.Env)
		return
	}
	respond.Internal(w, r, err, h.Env)
}
