package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/audit"
	"github.com/tradeconnect/server/internal/domain/webhooks"
)

type WebhooksHandler struct {
	Service *webhooks.Service
	Audit   *audit.Service
	Msg     localizer
	Env     string
}

func NewWebhooksHandler(service *webhooks.Service, auditSvc *audit.Service, msg localizer, env string) *WebhooksHandler {
	return &WebhooksHandler{Service: service, Audit: auditSvc, Msg: msg, Env: env}
}

type endpointDTO struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Secret     string    `json:"secret,omitempty"`
	EventTypes []string  `json:"eventTypes"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// toEndpointDTO redacts the signing secret; it is only disclosed at creation.
func toEndpointDTO(ep webhooks.Endpoint, includeSecret bool) endpointDTO {
	dto := endpointDTO{
		ID:         ep.ID,
		URL:        ep.URL,
		EventTypes: ep.EventTypes,
		Active:     ep.Active,
		CreatedAt:  ep.CreatedAt,
		UpdatedAt:  ep.UpdatedAt,
	}
	if includeSecret {
		dto.Secret = ep.Secret
	}
	return dto
}

type deliveryDTO struct {
	ID           string     `json:"id"`
	EndpointID   string     `json:"endpointId"`
	EventType    string     `json:"eventType"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	ResponseCode int        `json:"responseCode,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	DeliveredAt  *time.Time `json:"deliveredAt,omitempty"`
}

func toDeliveryDTO(d webhooks.Delivery) deliveryDTO {
	return deliveryDTO{
		ID:           d.ID,
		EndpointID:   d.EndpointID,
		EventType:    d.EventType,
		Status:       d.Status,
		Attempts:     d.Attempts,
		ResponseCode: d.ResponseCode,
		LastError:    d.LastError,
		CreatedAt:    d.CreatedAt,
		DeliveredAt:  d.DeliveredAt,
	}
}

func (h *WebhooksHandler) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	var input webhooks.EndpointInput
	if err := decodeJSON(r, &input); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}

	ep, err := h.Service.CreateEndpoint(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.Audit != nil {
		h.Audit.Success(r, "webhook.endpoint.create", "webhook_endpoint", ep.ID, map[string]string{"url": ep.URL})
	}
	respond.OK(w, http.StatusCreated, "", toEndpointDTO(*ep, true))
}

func (h *WebhooksHandler) GetEndpoint(w http.ResponseWriter, r *http.Request) {
	ep, err := h.Service.GetEndpoint(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, "", toEndpointDTO(*ep, false))
}

func (h *WebhooksHandler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.Service.ListEndpoints(r.Context())
	if err != nil {
		respond.Internal(w, r, err, h.Env)
		return
	}

	items := make([]endpointDTO, 0, len(endpoints))
	for _, ep := range endpoints {
		items = append(items, toEndpointDTO(ep, false))
	}
	respond.OK(w, http.StatusOK, "", items)
}

func (h *WebhooksHandler) UpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	var input webhooks.EndpointInput
	if err := decodeJSON(r, &input); err != nil {
		respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env)
		return
	}

	endpointID := pathParam(r, "id")
	ep, err := h.Service.UpdateEndpoint(r.Context(), endpointID, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.Audit != nil {
		h.Audit.Success(r, "webhook.endpoint.update", "webhook_endpoint", endpointID, nil)
	}
	respond.OK(w, http.StatusOK, "", toEndpointDTO(*ep, false))
}

func (h *WebhooksHandler) DeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	endpointID := pathParam(r, "id")
	if err := h.Service.DeleteEndpoint(r.Context(), endpointID); err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.Audit != nil {
		h.Audit.Success(r, "webhook.endpoint.delete", "webhook_endpoint", endpointID, nil)
	}
	respond.OK(w, http.StatusOK, "", nil)
}

// TestEndpoint queues a synthetic delivery against one endpoint and returns
// it with 202; the actual push happens on the background worker.
func (h *WebhooksHandler) TestEndpoint(w http.ResponseWriter, r *http.Request) {
	endpointID := pathParam(r, "id")
	delivery, err := h.Service.TestEndpoint(r.Context(), endpointID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.Audit != nil {
		h.Audit.Success(r, "webhook.endpoint.test", "webhook_endpoint", endpointID, nil)
	}
	respond.OK(w, http.StatusAccepted, "", toDeliveryDTO(*delivery))
}

func (h *WebhooksHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			badLimit := errors.New("invalid limit: expected positive integer")
			respond.Error(w, r, respond.CodeValidation, badLimit.Error(), badLimit, h.Env)
			return
		}
		limit = parsed
	}

	endpointID := pathParam(r, "id")
	if _, err := h.Service.GetEndpoint(r.Context(), endpointID); err != nil {
		h.writeError(w, r, err)
		return
	}

	deliveries, err := h.Service.ListDeliveries(r.Context(), endpointID, limit)
	if err != nil {
		respond.Internal(w, r, err, h.Env)
		return
	}

	items := make([]deliveryDTO, 0, len(deliveries))
	for _, d := range deliveries {
		items = append(items, toDeliveryDTO(d))
	}
	respond.OK(w, http.StatusOK, "", items)
}

func (h *WebhooksHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, webhooks.ErrEndpointNotFound), errors.Is(err, webhooks.ErrDeliveryNotFound):
		respond.Error(w, r, respond.CodeWebhookNotFound, "", err, h.Env)
	case errors.Is(err, webhooks.ErrUnknownEventType), errors.Is(err, webhooks.ErrInvalidURL):
		respond.Error(w, r, respond.CodeValidation, err.Error(), err, h.Env)
	default:
		if fields := validationFields(err); fields != nil {
			respond.Error(w, r, respond.CodeValidation, resolveMsg(h.Msg, r, "validation.invalid_payload"), err, h.Env, respond.WithData(fields))
			return
		}
		respond.Internal(w, r, err, h.Env)
	}
}
