package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tradeconnect/server/internal/api/middleware"
	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/config"
)

func TestMethodMux(t *testing.T) {
	mux := methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("list"))
		}),
		http.MethodPost: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}),
	})

	tests := []struct {
		name       string
		method     string
		wantStatus int
		wantAllow  string
		wantBody   string
	}{
		{name: "get allowed", method: http.MethodGet, wantStatus: http.StatusOK, wantBody: "list"},
		{name: "post allowed", method: http.MethodPost, wantStatus: http.StatusCreated},
		{name: "put rejected", method: http.MethodPut, wantStatus: http.StatusMethodNotAllowed, wantAllow: "GET, POST"},
		{name: "delete rejected", method: http.MethodDelete, wantStatus: http.StatusMethodNotAllowed, wantAllow: "GET, POST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, "/x", nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantAllow != "" {
				require.Equal(t, tt.wantAllow, rec.Header().Get("Allow"))
			}
			if tt.wantBody != "" {
				require.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestAllowedMethodsSorted(t *testing.T) {
	got := allowedMethods(map[string]http.Handler{
		http.MethodPost:   nil,
		http.MethodDelete: nil,
		http.MethodGet:    nil,
	})
	require.Equal(t, "DELETE, GET, POST", got)
}

func TestWrapAppliesOutsideIn(t *testing.T) {
	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := wrap(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}, tag("outer"), tag("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestMutationChainEnforcesTierBudget(t *testing.T) {
	cfg := config.RateLimitConfig{PublicPerMinute: 1000, MutationPer15Minutes: 10}
	limit := middleware.RateLimit(cfg)
	mutationTier := middleware.WithRateLimitTierHandler(middleware.TierMutation)

	// Same chain order the route groups use: tier first, then the limiter.
	h := wrap(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, mutationTier, limit, middleware.PublicRequestSize())

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/speakers", nil)
		req.RemoteAddr = "198.51.100.20:5000"
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "write %d should pass", i+1)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/speakers", nil)
	req.RemoteAddr = "198.51.100.20:5000"
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "90", rec.Header().Get("Retry-After"))
	require.Contains(t, rec.Body.String(), respond.CodeRateLimitExceeded)
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler("1.2.3", "abc123", "2026-03-01T00:00:00Z").
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "1.2.3", body["version"])
	require.Equal(t, "abc123", body["git_commit"])
	require.NotEmpty(t, body["go_version"])
}

func TestVersionHandlerDefaults(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler("", "", "").
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/version", nil))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "dev", body["version"])
	require.Equal(t, "unknown", body["git_commit"])
}

func TestOpenAPIHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	OpenAPIHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, "3.0.3", doc["openapi"])

	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, paths, "/speakers")
	require.Contains(t, paths, "/fel/invoices/{id}/void")
}

func TestOpenAPIHandlerRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	OpenAPIHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/openapi.json", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
