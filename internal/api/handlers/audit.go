package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/audit"
)

type AuditHandler struct {
	Service *audit.Service
	Env     string
}

func NewAuditHandler(service *audit.Service, env string) *AuditHandler {
	return &AuditHandler{Service: service, Env: env}
}

type auditPage struct {
	Items  []audit.Entry `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (h *AuditHandler) Query(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := audit.Filters{
		Actor:        query.Get("actor"),
		Action:       query.Get("action"),
		ResourceType: query.Get("resourceType"),
		ResourceID:   query.Get("resourceId"),
		Status:       query.Get("status"),
	}

	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badFrom := errors.New("invalid from: expected RFC 3339 timestamp")
			respond.Error(w, r, respond.CodeValidation, badFrom.Error(), badFrom, h.Env)
			return
		}
		filters.From = from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badTo := errors.New("invalid to: expected RFC 3339 timestamp")
			respond.Error(w, r, respond.CodeValidation, badTo.Error(), badTo, h.Env)
			return
		}
		filters.To = to
	}
	for name, target := range map[string]*int{"limit": &filters.Limit, "offset": &filters.Offset} {
		if raw := query.Get(name); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				badInt := errors.New("invalid " + name + ": expected non-negative integer")
				respond.Error(w, r, respond.CodeValidation, badInt.Error(), badInt, h.Env)
				return
			}
			*target = parsed
		}
	}

	entries, total, err := h.Service.Query(r.Context(), filters)
	if err != nil {
		respond.Internal(w, r, err, h.Env)
		return
	}

	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	respond.OK(w, http.StatusOK, "", auditPage{
		Items:  entries,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
}
