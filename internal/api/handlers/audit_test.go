package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tradeconnect/server/internal/audit"
	"github.com/tradeconnect/server/internal/clock"
)

type fakeAuditRepo struct {
	entries     []audit.Entry
	lastFilters audit.Filters
}

func (f *fakeAuditRepo) Insert(_ context.Context, entry audit.Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, filters audit.Filters) ([]audit.Entry, int, error) {
	f.lastFilters = filters
	var out []audit.Entry
	for _, e := range f.entries {
		if filters.Action != "" && e.Action != filters.Action {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func newAuditHandler(repo *fakeAuditRepo) *AuditHandler {
	svc := audit.NewService(repo, clock.NewFixed(capTestNow), zerolog.Nop())
	return &AuditHandler{Service: svc, Env: "test"}
}

func TestAuditQuery(t *testing.T) {
	repo := &fakeAuditRepo{entries: []audit.Entry{
		{ID: "a-1", Action: "speaker.create", Actor: "admin", Status: audit.StatusSuccess, Timestamp: capTestNow},
		{ID: "a-2", Action: "auth.login", Actor: "admin", Status: audit.StatusFailure, Timestamp: capTestNow},
	}}
	handler := newAuditHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit?action=speaker.create", nil)
	rec := httptest.NewRecorder()
	handler.Query(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	items := data["items"].([]any)
	require.Len(t, items, 1)
	require.Equal(t, float64(1), data["total"])
	require.Equal(t, float64(50), data["limit"])
}

func TestAuditQueryPassesFilters(t *testing.T) {
	repo := &fakeAuditRepo{}
	handler := newAuditHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit?actor=admin&status=failure&limit=10&offset=20&from=2026-03-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	handler.Query(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "admin", repo.lastFilters.Actor)
	require.Equal(t, "failure", repo.lastFilters.Status)
	require.Equal(t, 10, repo.lastFilters.Limit)
	require.Equal(t, 20, repo.lastFilters.Offset)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), repo.lastFilters.From)
}

func TestAuditQueryRejectsBadTimestamp(t *testing.T) {
	handler := newAuditHandler(&fakeAuditRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit?from=yesterday", nil)
	rec := httptest.NewRecorder()
	handler.Query(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditQueryReturnsEmptyPage(t *testing.T) {
	handler := newAuditHandler(&fakeAuditRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit", nil)
	rec := httptest.NewRecorder()
	handler.Query(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	items, ok := data["items"].([]any)
	require.True(t, ok)
	require.Empty(t, items)
}
