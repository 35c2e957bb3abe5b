package localization

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveDefaults(t *testing.T) {
	catalog, err := NewCatalog(LocaleSpanish)
	require.NoError(t, err)

	require.Equal(t,
		"La fecha de fin debe ser posterior a la fecha de inicio",
		catalog.Resolve("es", "availability.end_before_start"))
	require.Equal(t,
		"End date must be after start date",
		catalog.Resolve("en", "availability.end_before_start"))
}

func TestResolveFallsBackToDefaultLocale(t *testing.T) {
	catalog, err := NewCatalog(LocaleSpanish)
	require.NoError(t, err)

	// Unknown locale falls back to the Spanish catalog.
	require.Equal(t,
		"La fecha de fin debe ser posterior a la fecha de inicio",
		catalog.Resolve("fr", "availability.end_before_start"))

	// Unknown key returns the key itself.
	require.Equal(t, "no.such.key", catalog.Resolve("es", "no.such.key"))
}

func TestOverridesWin(t *testing.T) {
	catalog, err := NewCatalog(LocaleSpanish)
	require.NoError(t, err)

	catalog.SetOverrides("es", map[string]string{
		"speaker.created": "Ponente registrado",
	})

	require.Equal(t, "Ponente registrado", catalog.Resolve("es", "speaker.created"))
	// Other keys keep their defaults.
	require.Equal(t, "Ponente no encontrado", catalog.Resolve("es", "speaker.not_found"))

	messages := catalog.Messages("es")
	require.Equal(t, "Ponente registrado", messages["speaker.created"])
}

type stubLocalizationRepo struct {
	overrides map[string]map[string]string
}

func newStubLocalizationRepo() *stubLocalizationRepo {
	return &stubLocalizationRepo{overrides: make(map[string]map[string]string)}
}

func (s *stubLocalizationRepo) ListOverrides(_ context.Context, locale string) ([]Override, error) {
	var out []Override
	for key, msg := range s.overrides[locale] {
		out = append(out, Override{Locale: locale, Key: key, Message: msg})
	}
	return out, nil
}

func (s *stubLocalizationRepo) UpsertOverride(_ context.Context, o Override) error {
	if s.overrides[o.Locale] == nil {
		s.overrides[o.Locale] = make(map[string]string)
	}
	s.overrides[o.Locale][o.Key] = o.Message
	return nil
}

func (s *stubLocalizationRepo) DeleteOverride(_ context.Context, locale, key string) error {
	delete(s.overrides[locale], key)
	return nil
}

func TestServiceUpdateOverrides(t *testing.T) {
	catalog, err := NewCatalog(LocaleSpanish)
	require.NoError(t, err)
	repo := newStubLocalizationRepo()
	service := NewService(repo, catalog)

	err = service.UpdateOverrides(context.Background(), "es", map[string]string{
		"speaker.created": "Ponente registrado",
	})
	require.NoError(t, err)
	require.Equal(t, "Ponente registrado", service.Resolve("es", "speaker.created"))

	// Empty message clears the override.
	err = service.UpdateOverrides(context.Background(), "es", map[string]string{
		"speaker.created": "",
	})
	require.NoError(t, err)
	require.Equal(t, "Ponente creado exitosamente", service.Resolve("es", "speaker.created"))
}

func TestServiceRejectsUnsupportedLocale(t *testing.T) {
	catalog, err := NewCatalog(LocaleSpanish)
	require.NoError(t, err)
	service := NewService(newStubLocalizationRepo(), catalog)

	_, err = service.Messages(context.Background(), "de")
	require.ErrorIs(t, err, ErrUnsupportedLocale)

	err = service.UpdateOverrides(context.Background(), "de", nil)
	require.ErrorIs(t, err, ErrUnsupportedLocale)
}
