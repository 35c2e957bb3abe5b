// Package webhooks fans domain events out to subscriber endpoints.
// Deliveries are persisted first and pushed by a background worker; each
// request carries an HMAC-SHA256 signature of the body so receivers can
// verify origin.
package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradeconnect/server/internal/clock"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the request body.
const SignatureHeader = "X-TradeConnect-Signature"

var (
	ErrEndpointNotFound = errors.New("webhook endpoint not found")
	ErrDeliveryNotFound = errors.New("webhook delivery not found")
	ErrUnknownEventType = errors.New("unknown webhook event type")
	ErrInvalidURL       = errors.New("webhook url must be http or https")
)

// Delivery statuses.
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// EventTypes lists every event a subscriber can opt into.
var EventTypes = []string{
	"speaker.created",
	"speaker.updated",
	"speaker.deleted",
	"registration.confirmed",
	"registration.cancelled",
	"attendance.checked_in",
	"waitlist.promoted",
	"fel.invoice.voided",
	"certificate.confirmed",
}

func isKnownEventType(eventType string) bool {
	for _, t := range EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

type Endpoint struct {
	ID         string
	URL        string
	Secret     string
	EventTypes []string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Subscribes reports whether the endpoint wants the given event type.
// An empty subscription list means all events.
func (e Endpoint) Subscribes(eventType string) bool {
	if len(e.EventTypes) == 0 {
		return true
	}
	for _, t := range e.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

type Delivery struct {
	ID           string
	EndpointID   string
	EventType    string
	Payload      []byte
	Status       string
	Attempts     int
	ResponseCode int
	LastError    string
	CreatedAt    time.Time
	DeliveredAt  *time.Time
}

type Repository interface {
	CreateEndpoint(ctx context.Context, ep Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*Endpoint, error)
	ListEndpoints(ctx context.Context, activeOnly bool) ([]Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error

	CreateDelivery(ctx context.Context, d Delivery) error
	GetDelivery(ctx context.Context, id string) (*Delivery, error)
	ListDeliveries(ctx context.Context, endpointID string, limit int) ([]Delivery, error)
	MarkDelivered(ctx context.Context, id string, responseCode int, at time.Time) error
	MarkFailed(ctx context.Context, id string, responseCode int, lastError string, attempts int) error
}

// Enqueuer schedules the background push for a stored delivery.
type Enqueuer interface {
	EnqueueWebhookDelivery(ctx context.Context, deliveryID string) error
}

type Service struct {
	repo     Repository
	enqueuer Enqueuer
	clock    clock.Clock
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewService(repo Repository, enqueuer Enqueuer, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		enqueuer: enqueuer,
		clock:    clk,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type EndpointInput struct {
	URL        string   `json:"url" validate:"required,url"`
	EventTypes []string `json:"eventTypes"`
	Active     *bool    `json:"active"`
}

func (s *Service) validateInput(in EndpointInput) error {
	if err := s.validate.Struct(in); err != nil {
		return err
	}
	parsed, err := url.Parse(in.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return ErrInvalidURL
	}
	for _, t := range in.EventTypes {
		if !isKnownEventType(t) {
			return fmt.Errorf("%w: %s", ErrUnknownEventType, t)
		}
	}
	return nil
}

// CreateEndpoint registers a subscriber and mints its signing secret. The
// secret is returned exactly once; list and get responses redact it.
func (s *Service) CreateEndpoint(ctx context.Context, in EndpointInput) (*Endpoint, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	secret, err := newSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	now := s.clock.Now()
	ep := Endpoint{
		ID:         uuid.NewString(),
		URL:        in.URL,
		Secret:     secret,
		EventTypes: in.EventTypes,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.Active != nil {
		ep.Active = *in.Active
	}

	if err := s.repo.CreateEndpoint(ctx, ep); err != nil {
		return nil, fmt.Errorf("create endpoint: %w", err)
	}
	return &ep, nil
}

func (s *Service) GetEndpoint(ctx context.Context, id string) (*Endpoint, error) {
	ep, err := s.repo.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if ep == nil {
		return nil, ErrEndpointNotFound
	}
	return ep, nil
}

func (s *Service) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	return s.repo.ListEndpoints(ctx, false)
}

func (s *Service) UpdateEndpoint(ctx context.Context, id string, in EndpointInput) (*Endpoint, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	ep, err := s.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}

	ep.URL = in.URL
	ep.EventTypes = in.EventTypes
	if in.Active != nil {
		ep.Active = *in.Active
	}
	ep.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateEndpoint(ctx, *ep); err != nil {
		return nil, fmt.Errorf("update endpoint: %w", err)
	}
	return ep, nil
}

func (s *Service) DeleteEndpoint(ctx context.Context, id string) error {
	if _, err := s.GetEndpoint(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteEndpoint(ctx, id)
}

func (s *Service) ListDeliveries(ctx context.Context, endpointID string, limit int) ([]Delivery, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if endpointID != "" {
		if _, err := s.GetEndpoint(ctx, endpointID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListDeliveries(ctx, endpointID, limit)
}

// TestEndpoint queues a synthetic webhook.test delivery so an operator can
// verify connectivity and signature handling against one endpoint. Unlike
// Emit it reports failures, since the caller is waiting on the result.
func (s *Service) TestEndpoint(ctx context.Context, endpointID string) (*Delivery, error) {
	ep, err := s.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	body, err := json.Marshal(envelope{
		ID:        uuid.NewString(),
		EventType: "webhook.test",
		Timestamp: now,
		Data:      map[string]string{"endpointId": ep.ID, "message": "test delivery"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal test payload: %w", err)
	}

	delivery := Delivery{
		ID:         uuid.NewString(),
		EndpointID: ep.ID,
		EventType:  "webhook.test",
		Payload:    body,
		Status:     DeliveryPending,
		CreatedAt:  now,
	}
	if err := s.repo.CreateDelivery(ctx, delivery); err != nil {
		return nil, fmt.Errorf("create test delivery: %w", err)
	}
	if err := s.enqueuer.EnqueueWebhookDelivery(ctx, delivery.ID); err != nil {
		return nil, fmt.Errorf("enqueue test delivery: %w", err)
	}
	return &delivery, nil
}

// envelope is the wire shape of a delivered event.
type envelope struct {
	ID        string    `json:"id"`
	EventType string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Emit stores one delivery per subscribed active endpoint and enqueues the
// pushes. It never fails the caller: dispatch problems are logged, since the
// originating operation has already committed.
func (s *Service) Emit(ctx context.Context, eventType string, payload any) {
	endpoints, err := s.repo.ListEndpoints(ctx, true)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("webhook dispatch: list endpoints")
		return
	}

	eventID := uuid.NewString()
	body, err := json.Marshal(envelope{
		ID:        eventID,
		EventType: eventType,
		Timestamp: s.clock.Now(),
		Data:      payload,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("webhook dispatch: marshal payload")
		return
	}

	for _, ep := range endpoints {
		if !ep.Subscribes(eventType) {
			continue
		}
		delivery := Delivery{
			ID:         uuid.NewString(),
			EndpointID: ep.ID,
			EventType:  eventType,
			Payload:    body,
			Status:     DeliveryPending,
			CreatedAt:  s.clock.Now(),
		}
		if err := s.repo.CreateDelivery(ctx, delivery); err != nil {
			s.logger.Error().Err(err).Str("endpoint_id", ep.ID).Msg("webhook dispatch: create delivery")
			continue
		}
		if err := s.enqueuer.EnqueueWebhookDelivery(ctx, delivery.ID); err != nil {
			s.logger.Error().Err(err).Str("delivery_id", delivery.ID).Msg("webhook dispatch: enqueue")
		}
	}
}

// Sign computes the hex HMAC-SHA256 of body under the endpoint secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

func newSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}
