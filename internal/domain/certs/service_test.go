package certs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tradeconnect/server/internal/clock"
)

type stubCertsRepo struct {
	created []Certificate
	byID    map[string]*Certificate

	confirmedID string
	confirmedTx string
	failedID    string
	failedErr   string
	attempts    map[string]int
}

func newStubCertsRepo() *stubCertsRepo {
	return &stubCertsRepo{byID: map[string]*Certificate{}, attempts: map[string]int{}}
}

func (r *stubCertsRepo) Create(_ context.Context, cert Certificate) error {
	r.created = append(r.created, cert)
	c := cert
	r.byID[cert.ID] = &c
	return nil
}

func (r *stubCertsRepo) Get(_ context.Context, id string) (*Certificate, error) {
	return r.byID[id], nil
}

func (r *stubCertsRepo) List(_ context.Context, _ string, _ string, _ int) ([]Certificate, error) {
	return r.created, nil
}

func (r *stubCertsRepo) MarkConfirmed(_ context.Context, id, txID string, at time.Time) error {
	r.confirmedID = id
	r.confirmedTx = txID
	if cert, ok := r.byID[id]; ok {
		cert.Status = StatusConfirmed
		cert.TxID = txID
		cert.ConfirmedAt = &at
	}
	return nil
}

func (r *stubCertsRepo) MarkFailed(_ context.Context, id, lastError string) error {
	r.failedID = id
	r.failedErr = lastError
	if cert, ok := r.byID[id]; ok {
		cert.Status = StatusFailed
		cert.LastError = lastError
	}
	return nil
}

func (r *stubCertsRepo) IncrementAttempts(_ context.Context, id string) (int, error) {
	r.attempts[id]++
	if cert, ok := r.byID[id]; ok {
		cert.Attempts = r.attempts[id]
	}
	return r.attempts[id], nil
}

type stubGateway struct {
	txID  string
	err   error
	calls int
}

func (g *stubGateway) Register(_ context.Context, _, _ string) (string, error) {
	g.calls++
	return g.txID, g.err
}

type stubEnqueuer struct {
	ids []string
	err error
}

func (e *stubEnqueuer) EnqueueCertificateSubmission(_ context.Context, id string) error {
	e.ids = append(e.ids, id)
	return e.err
}

type capturingEmitter struct {
	eventType string
	payload   any
}

func (e *capturingEmitter) Emit(_ context.Context, eventType string, payload any) {
	e.eventType = eventType
	e.payload = payload
}

func fixedClock(t *testing.T) clock.Clock {
	t.Helper()
	return clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
}

func TestRequestCreatesPendingAndEnqueues(t *testing.T) {
	repo := newStubCertsRepo()
	enq := &stubEnqueuer{}
	svc := NewService(repo, &stubGateway{}, enq, nil, fixedClock(t), "polygon")

	cert, err := svc.Request(context.Background(), RequestInput{
		RegistrationID: "reg-1",
		EventULID:      "01JEXAMPLE0000000000000000",
		AttendeeName:   "Ana Morales",
		IssuedAt:       time.Date(2025, 5, 30, 18, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, cert.Status)
	require.Equal(t, "polygon", cert.Network)
	require.Len(t, cert.ContentHash, 64)
	require.Equal(t, []string{cert.ID}, enq.ids)
	require.Len(t, repo.created, 1)
}

func TestContentHashIsDeterministic(t *testing.T) {
	in := RequestInput{
		RegistrationID: "reg-1",
		EventULID:      "01JEXAMPLE0000000000000000",
		AttendeeName:   "Ana Morales",
		IssuedAt:       time.Date(2025, 5, 30, 18, 0, 0, 0, time.UTC),
	}
	require.Equal(t, ContentHash(in), ContentHash(in))

	changed := in
	changed.AttendeeName = "Luis Perez"
	require.NotEqual(t, ContentHash(in), ContentHash(changed))
}

func TestSubmitConfirmsAndEmits(t *testing.T) {
	repo := newStubCertsRepo()
	gw := &stubGateway{txID: "0xabc123"}
	emitter := &capturingEmitter{}
	svc := NewService(repo, gw, &stubEnqueuer{}, emitter, fixedClock(t), "polygon")

	cert, err := svc.Request(context.Background(), RequestInput{
		RegistrationID: "reg-1",
		EventULID:      "01JEXAMPLE0000000000000000",
		AttendeeName:   "Ana Morales",
		IssuedAt:       time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Submit(context.Background(), cert.ID))
	require.Equal(t, cert.ID, repo.confirmedID)
	require.Equal(t, "0xabc123", repo.confirmedTx)
	require.Equal(t, 1, repo.attempts[cert.ID])
	require.Equal(t, "certificate.confirmed", emitter.eventType)
}

func TestSubmitGatewayErrorMarksFailedAndReturnsError(t *testing.T) {
	repo := newStubCertsRepo()
	gw := &stubGateway{err: errors.New("chain unavailable")}
	svc := NewService(repo, gw, &stubEnqueuer{}, nil, fixedClock(t), "polygon")

	cert, err := svc.Request(context.Background(), RequestInput{RegistrationID: "reg-1", IssuedAt: time.Now()})
	require.NoError(t, err)

	err = svc.Submit(context.Background(), cert.ID)
	require.Error(t, err)
	require.Equal(t, cert.ID, repo.failedID)
	require.Contains(t, repo.failedErr, "chain unavailable")
}

func TestSubmitSkipsConfirmed(t *testing.T) {
	repo := newStubCertsRepo()
	gw := &stubGateway{txID: "0xabc"}
	svc := NewService(repo, gw, &stubEnqueuer{}, nil, fixedClock(t), "polygon")

	cert, err := svc.Request(context.Background(), RequestInput{RegistrationID: "reg-1", IssuedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, svc.Submit(context.Background(), cert.ID))
	require.NoError(t, svc.Submit(context.Background(), cert.ID))
	require.Equal(t, 1, gw.calls)
}

func TestSubmitUnknownCertificate(t *testing.T) {
	svc := NewService(newStubCertsRepo(), &stubGateway{}, &stubEnqueuer{}, nil, fixedClock(t), "polygon")
	err := svc.Submit(context.Background(), "missing")
	require.ErrorIs(t, err, ErrCertificateNotFound)
}

func TestHTTPGatewayRegister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/registrations", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"txId":"0xdeadbeef"}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "test-key")
	txID, err := gw.Register(context.Background(), "abcd", "polygon")
	require.NoError(t, err)
	require.Equal(t, "0xdeadbeef", txID)
}

func TestHTTPGatewayRegisterErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "test-key")
	_, err := gw.Register(context.Background(), "abcd", "polygon")
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}
