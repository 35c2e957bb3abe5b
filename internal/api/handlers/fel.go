package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/audit"
	"github.com/tradeconnect/server/internal/auth"
	"github.com/tradeconnect/server/internal/domain/fel"
	"github.com/tradeconnect/server/internal/metrics"
)

type FELHandler struct {
	Service *fel.Service
	Audit   *audit.Service
	Msg     localizer
	Env     string
}

func NewFELHandler(service *fel.Service, auditSvc *audit.Service, msg localizer, env string) *FELHandler {
	return &FELHandler{Service: service, Audit: auditSvc, Msg: msg, Env: env}
}

type invoiceDTO struct {
	ID                string     `json:"id"`
	Series            string     `json:"series"`
	Number            int64      `json:"number"`
	AuthorizationUUID string     `json:"authorizationUuid"`
	RegistrationID    string     `json:"registrationId"`
	EventID           string     `json:"eventId"`
	AmountCents       int64      `json:"amountCents"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	IssuedAt          time.Time  `json:"issuedAt"`
	VoidedAt          *time.Time `json:"voidedAt,omitempty"`
	VoidReason        string     `json:"voidReason,omitempty"`
	VoidedBy          string     `json:"voidedBy,omitempty"`
}

func toInvoiceDTO(inv fel.Invoice) invoiceDTO {
	return invoiceDTO{
		ID:                inv.ID,
		Series:            inv.Series,
		Number:            inv.Number,
		AuthorizationUUID: inv.AuthorizationUUID,
		RegistrationID:    inv.RegistrationID,
		EventID:           inv.EventULID,
		AmountCents:       inv.AmountCents,
		Currency:          inv.Currency,
		Status:            inv.Status,
		IssuedAt:          inv.IssuedAt,
		VoidedAt:          inv.VoidedAt,
		VoidReason:        inv.VoidReason,
		VoidedBy:          inv.VoidedBy,
	}
}

func invoiceFilters(r *http.Request) (fel.Filters, int, error) {
	query := r.URL.Query()
	filters := fel.Filters{
		Status:    query.Get("status"),
		Series:    query.Get("series"),
		EventULID: query.Get("event"),
	}

	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, 0, errors.New("invalid from: expected RFC 3339 timestamp")
		}
		filters.From = &from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, 0, errors.New("invalid to: expected RFC 3339 timestamp")
		}
		filters.To = &to
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return filters, 0, errors.New("invalid limit: expected positive integer")
		}
		limit = parsed
	}
	return filters, limit, nil
}

func (h *FELHandler) List(w http.ResponseWriter, r *http.Request) {
	filters, limit, err := invoiceFilters(r)
	if err != nil {
		respond.Error(w, r, respond.CodeValidation, err.Error(), err, h.Env)
		return
	}

	invoices, err := h.Service.List(r.Context(), filters, limit)
	if err != nil {
		respond.Internal(w, r, err, h.Env)
		return
	}
	respond.OK(w, http.StatusOK, "", toInvoiceDTOs(invoices))
}

func (h *FELHandler) Get(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, "", toInvoiceDTO(*invoice))
}

type voidInvoiceRequest struct {
	Reason string `json:"reason"`
}

func (h *FELHandler) Void(w http.ResponseWriter, r *http.Request) {
	var req voidInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}

	voidedBy := "unknown"
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		voidedBy = claims.Username
	}

	invoiceID := pathParam(r, "id")
	invoice, err := h.Service.Void(r.Context(), invoiceID, req.Reason, voidedBy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	metrics.InvoicesVoided.Inc()
	if h.Audit != nil {
		h.Audit.Success(r, "fel.invoice.void", "invoice", invoiceID, map[string]string{"reason": req.Reason})
	}
	respond.OK(w, http.StatusOK, resolveMsg(h.Msg, r, "fel.invoice_voided"), toInvoiceDTO(*invoice))
}

func (h *FELHandler) Voided(w http.ResponseWriter, r *http.Request) {
	filters, limit, err := invoiceFilters(r)
	if err != nil {
		respond.Error(w, r, respond.CodeValidation, err.Error(), err, h.Env)
		return
	}

	invoices, err := h.Service.Voided(r.Context(), filters, limit)
	if err != nil {
		respond.Internal(w, r, err, h.Env)
		return
	}
	respond.OK(w, http.StatusOK, "", toInvoiceDTOs(invoices))
}

func toInvoiceDTOs(invoices []fel.Invoice) []invoiceDTO {
	items := make([]invoiceDTO, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, toInvoiceDTO(inv))
	}
	return items
}

func (h *FELHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, fel.ErrInvoiceNotFound):
		respond.Error(w, r, respond.CodeInvoiceNotFound, "", err, h.Env)
	case errors.Is(err, fel.ErrAlreadyVoided):
		respond.Error(w, r, respond.CodeInvoiceAlreadyVoided, resolveMsg(h.Msg, r, "fel.already_voided"), err, h.Env)
	case errors.Is(err, fel.ErrReasonTooShort):
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "fel.reason_too_short"), err, h.Env)
	default:
		respond.Internal(w, r, err, h.Env)
	}
}
