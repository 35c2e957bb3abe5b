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
	"github.com/tradeconnect/server/internal/auth"
	"github.com/tradeconnect/server/internal/clock"
	"github.com/tradeconnect/server/internal/domain/fel"
)

type fakeInvoiceRepo struct {
	invoices map[string]fel.Invoice
}

func newFakeInvoiceRepo(invoices ...fel.Invoice) *fakeInvoiceRepo {
	repo := &fakeInvoiceRepo{invoices: make(map[string]fel.Invoice)}
	for _, inv := range invoices {
		repo.invoices[inv.ID] = inv
	}
	return repo
}

func (f *fakeInvoiceRepo) List(_ context.Context, filters fel.Filters, limit int) ([]fel.Invoice, error) {
	var out []fel.Invoice
	for _, inv := range f.invoices {
		if filters.Status != "" && inv.Status != filters.Status {
			continue
		}
		if filters.Series != "" && inv.Series != filters.Series {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, inv)
	}
	return out, nil
}

func (f *fakeInvoiceRepo) Get(_ context.Context, id string) (*fel.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (f *fakeInvoiceRepo) MarkVoided(_ context.Context, id, reason, voidedBy string, at time.Time) error {
	inv := f.invoices[id]
	inv.Status = fel.StatusVoided
	inv.VoidReason = reason
	inv.VoidedBy = voidedBy
	inv.VoidedAt = &at
	f.invoices[id] = inv
	return nil
}

func issuedInvoice(id string) fel.Invoice {
	return fel.Invoice{
		ID:          id,
		Series:      "A",
		Number:      101,
		EventULID:   capTestEvent,
		AmountCents: 35000,
		Currency:    "GTQ",
		Status:      fel.StatusIssued,
		IssuedAt:    time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newFELHandler(repo *fakeInvoiceRepo) *FELHandler {
	svc := fel.NewService(repo, clock.NewFixed(time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)), nil)
	return &FELHandler{Service: svc, Env: "test"}
}

func adminContext(r *http.Request) *http.Request {
	claims := &auth.Claims{Role: string(auth.RoleAdmin), Username: "auditor"}
	return r.WithContext(auth.WithClaims(r.Context(), claims))
}

func TestFELVoid(t *testing.T) {
	repo := newFakeInvoiceRepo(issuedInvoice("inv-1"))
	handler := newFELHandler(repo)

	body := `{"reason":"duplicated charge for registration"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fel/invoices/inv-1/void", strings.NewReader(body))
	req.SetPathValue("id", "inv-1")
	req = adminContext(req)
	rec := httptest.NewRecorder()
	handler.Void(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	require.Equal(t, fel.StatusVoided, data["status"])
	require.Equal(t, "auditor", data["voidedBy"])
	require.Equal(t, fel.StatusVoided, repo.invoices["inv-1"].Status)
}

func TestFELVoidReasonTooShort(t *testing.T) {
	repo := newFakeInvoiceRepo(issuedInvoice("inv-1"))
	handler := newFELHandler(repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/fel/invoices/inv-1/void", strings.NewReader(`{"reason":"short"}`))
	req.SetPathValue("id", "inv-1")
	rec := httptest.NewRecorder()
	handler.Void(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, fel.StatusIssued, repo.invoices["inv-1"].Status)
}

func TestFELVoidAlreadyVoided(t *testing.T) {
	inv := issuedInvoice("inv-1")
	inv.Status = fel.StatusVoided
	handler := newFELHandler(newFakeInvoiceRepo(inv))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/fel/invoices/inv-1/void", strings.NewReader(`{"reason":"duplicated charge again"}`))
	req.SetPathValue("id", "inv-1")
	rec := httptest.NewRecorder()
	handler.Void(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, respond.CodeInvoiceAlreadyVoided, env.Error)
}

func TestFELGetNotFound(t *testing.T) {
	handler := newFELHandler(newFakeInvoiceRepo())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fel/invoices/none", nil)
	req.SetPathValue("id", "none")
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, respond.CodeInvoiceNotFound, env.Error)
}

func TestFELListRejectsBadTimestamp(t *testing.T) {
	handler := newFELHandler(newFakeInvoiceRepo())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fel/invoices?from=yesterday", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFELVoidedReport(t *testing.T) {
	voided := issuedInvoice("inv-1")
	voided.Status = fel.StatusVoided
	handler := newFELHandler(newFakeInvoiceRepo(voided, issuedInvoice("inv-2")))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fel/invoices/voided", nil)
	rec := httptest.NewRecorder()
	handler.Voided(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	items := env.Data.([]any)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	require.Equal(t, "inv-1", first["id"])
}
