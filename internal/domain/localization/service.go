package localization

import (
	"context"
	"errors"
	"fmt"
)

var ErrUnsupportedLocale = errors.New("unsupported locale")

// Override is a persisted per-key message override.
type Override struct {
	Locale  string
	Key     string
	Message string
}

type Repository interface {
	ListOverrides(ctx context.Context, locale string) ([]Override, error)
	UpsertOverride(ctx context.Context, override Override) error
	DeleteOverride(ctx context.Context, locale, key string) error
}

type Service struct {
	repo    Repository
	catalog *Catalog
}

func NewService(repo Repository, catalog *Catalog) *Service {
	return &Service{repo: repo, catalog: catalog}
}

// WarmUp loads persisted overrides for all supported locales into the catalog.
func (s *Service) WarmUp(ctx context.Context) error {
	for _, locale := range SupportedLocales {
		overrides, err := s.repo.ListOverrides(ctx, locale)
		if err != nil {
			return fmt.Errorf("load overrides for %s: %w", locale, err)
		}
		merged := make(map[string]string, len(overrides))
		for _, o := range overrides {
			merged[o.Key] = o.Message
		}
		s.catalog.SetOverrides(locale, merged)
	}
	return nil
}

// Messages returns the effective catalog for a locale.
func (s *Service) Messages(ctx context.Context, locale string) (map[string]string, error) {
	if !IsSupportedLocale(locale) {
		return nil, ErrUnsupportedLocale
	}
	return s.catalog.Messages(locale), nil
}

// UpdateOverrides persists the given overrides and refreshes the catalog.
// An empty message deletes the override for that key.
func (s *Service) UpdateOverrides(ctx context.Context, locale string, messages map[string]string) error {
	if !IsSupportedLocale(locale) {
		return ErrUnsupportedLocale
	}

	for key, msg := range messages {
		if msg == "" {
			if err := s.repo.DeleteOverride(ctx, locale, key); err != nil {
				return fmt.Errorf("delete override %s/%s: %w", locale, key, err)
			}
			continue
		}
		if err := s.repo.UpsertOverride(ctx, Override{Locale: locale, Key: key, Message: msg}); err != nil {
			return fmt.Errorf("upsert override %s/%s: %w", locale, key, err)
		}
	}

	overrides, err := s.repo.ListOverrides(ctx, locale)
	if err != nil {
		return fmt.Errorf("reload overrides for %s: %w", locale, err)
	}
	merged := make(map[string]string, len(overrides))
	for _, o := range overrides {
		merged[o.Key] = o.Message
	}
	s.catalog.SetOverrides(locale, merged)
	return nil
}

// Resolve returns the message for key in locale.
func (s *Service) Resolve(locale, key string) string {
	return s.catalog.Resolve(locale, key)
}
