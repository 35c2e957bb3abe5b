// Package respond writes the TradeConnect JSON envelope shared by every API
// endpoint: {success, message, data, error, timestamp}. Error codes map to
// HTTP statuses through a fixed table so handlers never hand-pick statuses.
package respond

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const contentType = "application/json"

type Envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Error codes surfaced on the wire.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "INSUFFICIENT_PERMISSIONS"
	CodeSpeakerNotFound        = "SPEAKER_NOT_FOUND"
	CodeEventNotFound          = "EVENT_NOT_FOUND"
	CodeSpeakerEventNotFound   = "SPEAKER_EVENT_NOT_FOUND"
	CodeRegistrationNotFound   = "REGISTRATION_NOT_FOUND"
	CodeLockNotFound           = "LOCK_NOT_FOUND"
	CodeInvoiceNotFound        = "INVOICE_NOT_FOUND"
	CodeCertificateNotFound    = "CERTIFICATE_NOT_FOUND"
	CodeWebhookNotFound        = "WEBHOOK_NOT_FOUND"
	CodeWaitlistEntryNotFound  = "WAITLIST_ENTRY_NOT_FOUND"
	CodeUserNotFound           = "USER_NOT_FOUND"
	CodeSpeakerHasFutureEvents = "SPEAKER_HAS_FUTURE_EVENTS"
	CodeAvailabilityConflict   = "AVAILABILITY_CONFLICT"
	CodeCapacityExceeded       = "CAPACITY_EXCEEDED"
	CodeIdempotencyConflict    = "IDEMPOTENCY_CONFLICT"
	CodeInvoiceAlreadyVoided   = "INVOICE_ALREADY_VOIDED"
	CodeRegistrationCancelled  = "REGISTRATION_CANCELLED"
	CodeUserExists             = "USER_EXISTS"
	CodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	CodeInternal               = "INTERNAL_ERROR"
)

var statusByCode = map[string]int{
	CodeValidation:             http.StatusBadRequest,
	CodeUnauthorized:           http.StatusUnauthorized,
	CodeForbidden:              http.StatusForbidden,
	CodeSpeakerNotFound:        http.StatusNotFound,
	CodeEventNotFound:          http.StatusNotFound,
	CodeSpeakerEventNotFound:   http.StatusNotFound,
	CodeRegistrationNotFound:   http.StatusNotFound,
	CodeLockNotFound:           http.StatusNotFound,
	CodeInvoiceNotFound:        http.StatusNotFound,
	CodeCertificateNotFound:    http.StatusNotFound,
	CodeWebhookNotFound:        http.StatusNotFound,
	CodeWaitlistEntryNotFound:  http.StatusNotFound,
	CodeUserNotFound:           http.StatusNotFound,
	CodeSpeakerHasFutureEvents: http.StatusConflict,
	CodeAvailabilityConflict:   http.StatusConflict,
	CodeCapacityExceeded:       http.StatusConflict,
	CodeIdempotencyConflict:    http.StatusConflict,
	CodeInvoiceAlreadyVoided:   http.StatusConflict,
	CodeRegistrationCancelled:  http.StatusConflict,
	CodeUserExists:             http.StatusConflict,
	CodeRateLimitExceeded:      http.StatusTooManyRequests,
	CodeInternal:               http.StatusInternalServerError,
}

// StatusForCode returns the HTTP status for an error code, defaulting to 500
// for unknown codes.
func StatusForCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type Option func(*Envelope)

// WithData attaches a data payload to an error envelope (e.g. field errors).
func WithData(data any) Option {
	return func(e *Envelope) {
		e.Data = data
	}
}

// OK writes a success envelope.
func OK(w http.ResponseWriter, status int, message string, data any) {
	env := Envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	write(w, status, env)
}

// Error writes an error envelope and logs it with the request-scoped logger:
// 5xx at error level, 4xx at warn level. In production the underlying error
// text is not leaked to the client; the message argument is what callers see.
func Error(w http.ResponseWriter, r *http.Request, code, message string, err error, env string, opts ...Option) {
	status := StatusForCode(code)

	payload := Envelope{
		Success:   false,
		Message:   message,
		Error:     code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for _, opt := range opts {
		opt(&payload)
	}

	if payload.Message == "" {
		if err != nil && (env == "development" || env == "test") {
			payload.Message = err.Error()
		} else {
			payload.Message = http.StatusText(status)
		}
	}

	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		event := logger.Warn()
		if status >= 500 {
			event = logger.Error()
		}
		event.
			Err(err).
			Int("status", status).
			Str("code", code).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(payload.Message)
	}

	write(w, status, payload)
}

// Internal writes a generic 500 envelope for unexpected errors.
func Internal(w http.ResponseWriter, r *http.Request, err error, env string) {
	Error(w, r, CodeInternal, "Error interno del servidor", err, env)
}

func write(w http.ResponseWriter, status int, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"INTERNAL_ERROR","message":"Internal Server Error"}`))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
