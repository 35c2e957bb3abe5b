package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/audit"
	"github.com/tradeconnect/server/internal/domain/certs"
)

type CertificatesHandler struct {
	Service *certs.Service
	Audit   *audit.Service
	Msg     localizer
	Env     string
}

func NewCertificatesHandler(service *certs.Service, auditSvc *audit.Service, msg localizer, env string) *CertificatesHandler {
	return &CertificatesHandler{Service: service, Audit: auditSvc, Msg: msg, Env: env}
}

type certificateDTO struct {
	ID             string     `json:"id"`
	RegistrationID string     `json:"registrationId"`
	EventID        string     `json:"eventId"`
	AttendeeName   string     `json:"attendeeName"`
	ContentHash    string     `json:"contentHash"`
	Network        string     `json:"network"`
	TxID           string     `json:"txId,omitempty"`
	Status         string     `json:"status"`
	Attempts       int        `json:"attempts"`
	CreatedAt      time.Time  `json:"createdAt"`
	ConfirmedAt    *time.Time `json:"confirmedAt,omitempty"`
}

func toCertificateDTO(cert certs.Certificate) certificateDTO {
	return certificateDTO{
		ID:             cert.ID,
		RegistrationID: cert.RegistrationID,
		EventID:        cert.EventULID,
		AttendeeName:   cert.AttendeeName,
		ContentHash:    cert.ContentHash,
		Network:        cert.Network,
		TxID:           cert.TxID,
		Status:         cert.Status,
		Attempts:       cert.Attempts,
		CreatedAt:      cert.CreatedAt,
		ConfirmedAt:    cert.ConfirmedAt,
	}
}

type certificateRequest struct {
	RegistrationID string    `json:"registrationId"`
	EventID        string    `json:"eventId"`
	AttendeeName   string    `json:"attendeeName"`
	IssuedAt       time.Time `json:"issuedAt"`
}

func (h *CertificatesHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req certificateRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}
	if req.RegistrationID == "" || req.EventID == "" || req.AttendeeName == "" {
		err := errors.New("registrationId, eventId and attendeeName are required")
		respond.Error(w, r, respond.CodeValidation, err.Error(), err, h.Env)
		return
	}
	if req.IssuedAt.IsZero() {
		req.IssuedAt = time.Now().UTC()
	}

	cert, err := h.Service.Request(r.Context(), certs.RequestInput{
		RegistrationID: req.RegistrationID,
		EventULID:      req.EventID,
		AttendeeName:   req.AttendeeName,
		IssuedAt:       req.IssuedAt,
	})
	if err != nil {
		respond.Internal(w, r, err, h.Env)
		return
	}

	if h.Audit != nil {
		h.Audit.Success(r, "certificate.request", "certificate", cert.ID, map[string]string{"event": cert.EventULID})
	}
	respond.OK(w, http.StatusAccepted, "", toCertificateDTO(*cert))
}

func (h *CertificatesHandler) Get(w http.ResponseWriter, r *http.Request) {
	cert, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, certs.ErrCertificateNotFound) {
			respond.Error(w, r, respond.CodeCertificateNotFound, "", err, h.Env)
			return
		}
		respond.Internal(w, r, err, h.Env)
		return
	}
	respond.OK(w, http.StatusOK, "", toCertificateDTO(*cert))
}

func (h *CertificatesHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			badLimit := errors.New("invalid limit: expected positive integer")
			respond.Error(w, r, respond.CodeValidation, badLimit.Error(), badLimit, h.Env)
			return
		}
		limit = parsed
	}

	certificates, err := h.Service.List(r.Context(), query.Get("event"), query.Get("status"), limit)
	if err != nil {
		respond.Internal(w, r, err, h.Env)
		return
	}

	items := make([]certificateDTO, 0, len(certificates))
	for _, cert := range certificates {
		items = append(items, toCertificateDTO(cert))
	}
	respond.OK(w, http.StatusOK, "", items)
}
