package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/clock"
	"github.com/tradeconnect/server/internal/domain/certs"
)

type fakeCertRepo struct {
	certs map[string]certs.Certificate
}

func newFakeCertRepo() *fakeCertRepo {
	return &fakeCertRepo{certs: make(map[string]certs.Certificate)}
}

func (f *fakeCertRepo) Create(_ context.Context, cert certs.Certificate) error {
	f.certs[cert.ID] = cert
	return nil
}

func (f *fakeCertRepo) Get(_ context.Context, id string) (*certs.Certificate, error) {
	cert, ok := f.certs[id]
	if !ok {
		return nil, nil
	}
	return &cert, nil
}

func (f *fakeCertRepo) List(_ context.Context, eventULID string, status string, _ int) ([]certs.Certificate, error) {
	var out []certs.Certificate
	for _, cert := range f.certs {
		if eventULID != "" && cert.EventULID != eventULID {
			continue
		}
		if status != "" && cert.Status != status {
			continue
		}
		out = append(out, cert)
	}
	return out, nil
}

func (f *fakeCertRepo) MarkConfirmed(_ context.Context, id, txID string, at time.Time) error {
	cert := f.certs[id]
	cert.Status = certs.StatusConfirmed
	cert.TxID = txID
	cert.ConfirmedAt = &at
	f.certs[id] = cert
	return nil
}

func (f *fakeCertRepo) MarkFailed(_ context.Context, id, lastError string) error {
	cert := f.certs[id]
	cert.Status = certs.StatusFailed
	cert.LastError = lastError
	f.certs[id] = cert
	return nil
}

func (f *fakeCertRepo) IncrementAttempts(_ context.Context, id string) (int, error) {
	cert := f.certs[id]
	cert.Attempts++
	f.certs[id] = cert
	return cert.Attempts, nil
}

type recordingCertEnqueuer struct {
	ids []string
}

func (e *recordingCertEnqueuer) EnqueueCertificateSubmission(_ context.Context, id string) error {
	e.ids = append(e.ids, id)
	return nil
}

type stubGateway struct{}

func (stubGateway) Register(context.Context, string, string) (string, error) {
	return "0xabc", nil
}

func newCertificatesHandler(repo *fakeCertRepo) (*CertificatesHandler, *recordingCertEnqueuer) {
	enq := &recordingCertEnqueuer{}
	svc := certs.NewService(repo, stubGateway{}, enq, nil, clock.NewFixed(capTestNow), "polygon")
	return &CertificatesHandler{Service: svc, Env: "test"}, enq
}

func TestCertificatesRequest(t *testing.T) {
	repo := newFakeCertRepo()
	handler, enq := newCertificatesHandler(repo)

	body := `{"registrationId":"reg-1","eventId":"` + capTestEvent + `","attendeeName":"Ana Morales","issuedAt":"2026-03-10T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Request(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	require.Equal(t, certs.StatusPending, data["status"])
	require.Equal(t, "polygon", data["network"])
	require.NotEmpty(t, data["contentHash"])
	require.Len(t, enq.ids, 1)
	require.Len(t, repo.certs, 1)
}

func TestCertificatesRequestMissingFields(t *testing.T) {
	handler, enq := newCertificatesHandler(newFakeCertRepo())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates", strings.NewReader(`{"registrationId":"reg-1"}`))
	rec := httptest.NewRecorder()
	handler.Request(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, enq.ids)
}

func TestCertificatesGetNotFound(t *testing.T) {
	handler, _ := newCertificatesHandler(newFakeCertRepo())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/certificates/none", nil)
	req.SetPathValue("id", "none")
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, respond.CodeCertificateNotFound, env.Error)
}

func TestCertificatesListByStatus(t *testing.T) {
	repo := newFakeCertRepo()
	repo.certs["c-1"] = certs.Certificate{ID: "c-1", EventULID: capTestEvent, Status: certs.StatusConfirmed}
	repo.certs["c-2"] = certs.Certificate{ID: "c-2", EventULID: capTestEvent, Status: certs.StatusPending}
	handler, _ := newCertificatesHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/certificates?status=confirmed", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	items := env.Data.([]any)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	require.Equal(t, "c-1", first["id"])
}
