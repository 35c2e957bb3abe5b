package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tradeconnect/server/internal/domain/localization"
)

type fakeOverrideRepo struct {
	overrides map[string]map[string]string
}

func newFakeOverrideRepo() *fakeOverrideRepo {
	return &fakeOverrideRepo{overrides: make(map[string]map[string]string)}
}

func (f *fakeOverrideRepo) ListOverrides(_ context.Context, locale string) ([]localization.Override, error) {
	var out []localization.Override
	for key, msg := range f.overrides[locale] {
		out = append(out, localization.Override{Locale: locale, Key: key, Message: msg})
	}
	return out, nil
}

func (f *fakeOverrideRepo) UpsertOverride(_ context.Context, o localization.Override) error {
	if f.overrides[o.Locale] == nil {
		f.overrides[o.Locale] = make(map[string]string)
	}
	f.overrides[o.Locale][o.Key] = o.Message
	return nil
}

func (f *fakeOverrideRepo) DeleteOverride(_ context.Context, locale, key string) error {
	delete(f.overrides[locale], key)
	return nil
}

func newLocalizationHandler(t *testing.T) (*LocalizationHandler, *fakeOverrideRepo) {
	t.Helper()
	catalog, err := localization.NewCatalog(localization.LocaleSpanish)
	require.NoError(t, err)
	repo := newFakeOverrideRepo()
	return &LocalizationHandler{Service: localization.NewService(repo, catalog), Env: "test"}, repo
}

func TestLocalizationMessages(t *testing.T) {
	handler, _ := newLocalizationHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/i18n/es", nil)
	req.SetPathValue("locale", "es")
	rec := httptest.NewRecorder()
	handler.Messages(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	require.NotEmpty(t, data["speaker.created"])
}

func TestLocalizationMessagesUnsupportedLocale(t *testing.T) {
	handler, _ := newLocalizationHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/i18n/fr", nil)
	req.SetPathValue("locale", "fr")
	rec := httptest.NewRecorder()
	handler.Messages(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLocalizationUpdateOverrides(t *testing.T) {
	handler, repo := newLocalizationHandler(t)

	body := `{"speaker.created":"Expositor registrado con éxito"}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/i18n/es", strings.NewReader(body))
	req.SetPathValue("locale", "es")
	rec := httptest.NewRecorder()
	handler.UpdateOverrides(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	require.Equal(t, "Expositor registrado con éxito", data["speaker.created"])
	require.Equal(t, "Expositor registrado con éxito", repo.overrides["es"]["speaker.created"])
	require.Equal(t, "Expositor registrado con éxito", handler.Service.Resolve("es", "speaker.created"))
}

func TestLocalizationDeleteOverrideWithEmptyMessage(t *testing.T) {
	handler, repo := newLocalizationHandler(t)
	repo.overrides["es"] = map[string]string{"speaker.created": "custom"}
	require.NoError(t, handler.Service.WarmUp(context.Background()))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/i18n/es", strings.NewReader(`{"speaker.created":""}`))
	req.SetPathValue("locale", "es")
	rec := httptest.NewRecorder()
	handler.UpdateOverrides(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, repo.overrides["es"])
	require.NotEqual(t, "custom", handler.Service.Resolve("es", "speaker.created"))
}

func TestLocalizationLocales(t *testing.T) {
	handler, _ := newLocalizationHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/i18n", nil)
	rec := httptest.NewRecorder()
	handler.Locales(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	require.Equal(t, "es", data["default"])
	require.Len(t, data["locales"], 2)
}
