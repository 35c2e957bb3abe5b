package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func acceptLanguageRequest(value string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if value != "" {
		req.Header.Set("Accept-Language", value)
	}
	return req
}

func TestRequestLocale(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"", "es"},
		{"es", "es"},
		{"en", "en"},
		{"en-US,en;q=0.9", "en"},
		{"es-GT,es;q=0.9,en;q=0.8", "es"},
		{"fr-FR,fr;q=0.9", "es"},
		{"fr, en;q=0.8", "en"},
		{"*", "es"},
	}
	for _, tc := range cases {
		got := requestLocale(acceptLanguageRequest(tc.header))
		require.Equal(t, tc.want, got, "header %q", tc.header)
	}
}

type staticLocalizer map[string]string

func (s staticLocalizer) Resolve(_, key string) string {
	if msg, ok := s[key]; ok {
		return msg
	}
	return key
}

func TestResolveMsg(t *testing.T) {
	msgs := staticLocalizer{"speaker.created": "Expositor creado"}
	req := acceptLanguageRequest("es")

	require.Equal(t, "Expositor creado", resolveMsg(msgs, req, "speaker.created"))
	require.Equal(t, "missing.key", resolveMsg(msgs, req, "missing.key"))
	require.Equal(t, "speaker.created", resolveMsg(nil, req, "speaker.created"))
}
