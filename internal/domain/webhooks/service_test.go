package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tradeconnect/server/internal/clock"
)

type stubWebhooksRepo struct {
	endpoints  map[string]*Endpoint
	deliveries map[string]*Delivery
}

func newStubWebhooksRepo() *stubWebhooksRepo {
	return &stubWebhooksRepo{
		endpoints:  map[string]*Endpoint{},
		deliveries: map[string]*Delivery{},
	}
}

func (r *stubWebhooksRepo) CreateEndpoint(_ context.Context, ep Endpoint) error {
	e := ep
	r.endpoints[ep.ID] = &e
	return nil
}

func (r *stubWebhooksRepo) GetEndpoint(_ context.Context, id string) (*Endpoint, error) {
	return r.endpoints[id], nil
}

func (r *stubWebhooksRepo) ListEndpoints(_ context.Context, activeOnly bool) ([]Endpoint, error) {
	var out []Endpoint
	for _, ep := range r.endpoints {
		if activeOnly && !ep.Active {
			continue
		}
		out = append(out, *ep)
	}
	return out, nil
}

func (r *stubWebhooksRepo) UpdateEndpoint(_ context.Context, ep Endpoint) error {
	e := ep
	r.endpoints[ep.ID] = &e
	return nil
}

func (r *stubWebhooksRepo) DeleteEndpoint(_ context.Context, id string) error {
	delete(r.endpoints, id)
	return nil
}

func (r *stubWebhooksRepo) CreateDelivery(_ context.Context, d Delivery) error {
	dd := d
	r.deliveries[d.ID] = &dd
	return nil
}

func (r *stubWebhooksRepo) GetDelivery(_ context.Context, id string) (*Delivery, error) {
	return r.deliveries[id], nil
}

func (r *stubWebhooksRepo) ListDeliveries(_ context.Context, endpointID string, _ int) ([]Delivery, error) {
	var out []Delivery
	for _, d := range r.deliveries {
		if endpointID != "" && d.EndpointID != endpointID {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (r *stubWebhooksRepo) MarkDelivered(_ context.Context, id string, responseCode int, at time.Time) error {
	d := r.deliveries[id]
	d.Status = DeliveryDelivered
	d.ResponseCode = responseCode
	d.DeliveredAt = &at
	d.Attempts++
	return nil
}

func (r *stubWebhooksRepo) MarkFailed(_ context.Context, id string, responseCode int, lastError string, attempts int) error {
	d := r.deliveries[id]
	d.Status = DeliveryFailed
	d.ResponseCode = responseCode
	d.LastError = lastError
	d.Attempts = attempts
	return nil
}

type stubDeliveryEnqueuer struct {
	ids []string
}

func (e *stubDeliveryEnqueuer) EnqueueWebhookDelivery(_ context.Context, id string) error {
	e.ids = append(e.ids, id)
	return nil
}

func newWebhooksService(repo *stubWebhooksRepo, enq *stubDeliveryEnqueuer) *Service {
	return NewService(repo, enq, clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)), zerolog.Nop())
}

func TestCreateEndpointMintsSecret(t *testing.T) {
	svc := newWebhooksService(newStubWebhooksRepo(), &stubDeliveryEnqueuer{})

	ep, err := svc.CreateEndpoint(context.Background(), EndpointInput{
		URL:        "https://example.com/hooks",
		EventTypes: []string{"fel.invoice.voided"},
	})
	require.NoError(t, err)
	require.True(t, ep.Active)
	require.Contains(t, ep.Secret, "whsec_")
	require.Len(t, ep.Secret, len("whsec_")+64)
}

func TestCreateEndpointRejectsBadInput(t *testing.T) {
	svc := newWebhooksService(newStubWebhooksRepo(), &stubDeliveryEnqueuer{})

	_, err := svc.CreateEndpoint(context.Background(), EndpointInput{URL: "not-a-url"})
	require.Error(t, err)

	_, err = svc.CreateEndpoint(context.Background(), EndpointInput{
		URL:        "https://example.com/hooks",
		EventTypes: []string{"speaker.exploded"},
	})
	require.ErrorIs(t, err, ErrUnknownEventType)
}

func TestEmitCreatesDeliveriesForSubscribers(t *testing.T) {
	repo := newStubWebhooksRepo()
	enq := &stubDeliveryEnqueuer{}
	svc := newWebhooksService(repo, enq)

	sub, err := svc.CreateEndpoint(context.Background(), EndpointInput{
		URL:        "https://example.com/fel",
		EventTypes: []string{"fel.invoice.voided"},
	})
	require.NoError(t, err)

	_, err = svc.CreateEndpoint(context.Background(), EndpointInput{
		URL:        "https://example.com/certs",
		EventTypes: []string{"certificate.confirmed"},
	})
	require.NoError(t, err)

	inactive := false
	_, err = svc.CreateEndpoint(context.Background(), EndpointInput{
		URL:    "https://example.com/paused",
		Active: &inactive,
	})
	require.NoError(t, err)

	svc.Emit(context.Background(), "fel.invoice.voided", map[string]any{"invoiceId": "inv-1"})

	require.Len(t, enq.ids, 1)
	d := repo.deliveries[enq.ids[0]]
	require.Equal(t, sub.ID, d.EndpointID)
	require.Equal(t, DeliveryPending, d.Status)

	var env envelope
	require.NoError(t, json.Unmarshal(d.Payload, &env))
	require.Equal(t, "fel.invoice.voided", env.EventType)
	require.NotEmpty(t, env.ID)
}

func TestEmitEmptySubscriptionMeansAllEvents(t *testing.T) {
	repo := newStubWebhooksRepo()
	enq := &stubDeliveryEnqueuer{}
	svc := newWebhooksService(repo, enq)

	_, err := svc.CreateEndpoint(context.Background(), EndpointInput{URL: "https://example.com/all"})
	require.NoError(t, err)

	svc.Emit(context.Background(), "speaker.created", map[string]any{"id": "x"})
	svc.Emit(context.Background(), "waitlist.promoted", map[string]any{"id": "y"})
	require.Len(t, enq.ids, 2)
}

func TestTestEndpointQueuesSyntheticDelivery(t *testing.T) {
	repo := newStubWebhooksRepo()
	enq := &stubDeliveryEnqueuer{}
	svc := newWebhooksService(repo, enq)

	ep, err := svc.CreateEndpoint(context.Background(), EndpointInput{
		URL:        "https://example.com/hook",
		EventTypes: []string{"speaker.created"},
	})
	require.NoError(t, err)

	d, err := svc.TestEndpoint(context.Background(), ep.ID)
	require.NoError(t, err)
	require.Equal(t, ep.ID, d.EndpointID)
	require.Equal(t, "webhook.test", d.EventType)
	require.Equal(t, DeliveryPending, d.Status)
	require.Equal(t, []string{d.ID}, enq.ids)

	var env envelope
	require.NoError(t, json.Unmarshal(d.Payload, &env))
	require.Equal(t, "webhook.test", env.EventType)
	require.Equal(t, ep.ID, env.Data.(map[string]any)["endpointId"])
}

func TestTestEndpointUnknownEndpoint(t *testing.T) {
	svc := newWebhooksService(newStubWebhooksRepo(), &stubDeliveryEnqueuer{})

	_, err := svc.TestEndpoint(context.Background(), "missing")
	require.ErrorIs(t, err, ErrEndpointNotFound)
}

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := Sign("whsec_abc", body)
	require.Len(t, sig, 64)
	require.True(t, VerifySignature("whsec_abc", body, sig))
	require.False(t, VerifySignature("whsec_other", body, sig))
	require.False(t, VerifySignature("whsec_abc", []byte(`{"hello":"tampered"}`), sig))
}

func TestDelivererSignsAndMarksDelivered(t *testing.T) {
	repo := newStubWebhooksRepo()
	svc := newWebhooksService(repo, &stubDeliveryEnqueuer{})

	var gotSignature, gotEvent string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(SignatureHeader)
		gotEvent = r.Header.Get("X-TradeConnect-Event")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep, err := svc.CreateEndpoint(context.Background(), EndpointInput{URL: srv.URL})
	require.NoError(t, err)

	svc.Emit(context.Background(), "attendance.checked_in", map[string]any{"registrationId": "reg-1"})
	require.Len(t, repo.deliveries, 1)

	var deliveryID string
	for id := range repo.deliveries {
		deliveryID = id
	}

	deliverer := NewDeliverer(repo, clock.NewSystem(), time.Second)
	require.NoError(t, deliverer.Deliver(context.Background(), deliveryID))

	d := repo.deliveries[deliveryID]
	require.Equal(t, DeliveryDelivered, d.Status)
	require.Equal(t, http.StatusOK, d.ResponseCode)
	require.Equal(t, "attendance.checked_in", gotEvent)
	require.True(t, VerifySignature(ep.Secret, gotBody, gotSignature))
}

func TestDelivererFailureRecordedAndRetryable(t *testing.T) {
	repo := newStubWebhooksRepo()
	svc := newWebhooksService(repo, &stubDeliveryEnqueuer{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := svc.CreateEndpoint(context.Background(), EndpointInput{URL: srv.URL})
	require.NoError(t, err)
	svc.Emit(context.Background(), "speaker.deleted", map[string]any{"id": "x"})

	var deliveryID string
	for id := range repo.deliveries {
		deliveryID = id
	}

	deliverer := NewDeliverer(repo, clock.NewSystem(), time.Second)
	err = deliverer.Deliver(context.Background(), deliveryID)
	require.Error(t, err)

	d := repo.deliveries[deliveryID]
	require.Equal(t, DeliveryFailed, d.Status)
	require.Equal(t, 1, d.Attempts)
	require.Contains(t, d.LastError, "500")
}

func TestDelivererSkipsAlreadyDelivered(t *testing.T) {
	repo := newStubWebhooksRepo()
	now := time.Now()
	repo.deliveries["d-1"] = &Delivery{ID: "d-1", Status: DeliveryDelivered, DeliveredAt: &now}

	deliverer := NewDeliverer(repo, clock.NewSystem(), time.Second)
	require.NoError(t, deliverer.Deliver(context.Background(), "d-1"))
}
