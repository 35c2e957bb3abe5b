// Package localization resolves user-facing message templates per locale.
// Defaults ship embedded in the binary; admins can override individual keys
// and the overrides are persisted and layered on top of the defaults.
package localization

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultCatalogYAML []byte

const (
	LocaleSpanish = "es"
	LocaleEnglish = "en"
)

// SupportedLocales lists the locales the platform ships catalogs for.
var SupportedLocales = []string{LocaleSpanish, LocaleEnglish}

func IsSupportedLocale(locale string) bool {
	locale = strings.ToLower(strings.TrimSpace(locale))
	for _, candidate := range SupportedLocales {
		if locale == candidate {
			return true
		}
	}
	return false
}

// Catalog holds per-locale message maps with override layering.
type Catalog struct {
	mu        sync.RWMutex
	defaults  map[string]map[string]string
	overrides map[string]map[string]string
	fallback  string
}

// NewCatalog parses the embedded defaults. fallbackLocale is used when a key
// is missing from the requested locale.
func NewCatalog(fallbackLocale string) (*Catalog, error) {
	defaults := make(map[string]map[string]string)
	if err := yaml.Unmarshal(defaultCatalogYAML, &defaults); err != nil {
		return nil, fmt.Errorf("parse default catalog: %w", err)
	}
	if !IsSupportedLocale(fallbackLocale) {
		fallbackLocale = LocaleSpanish
	}
	return &Catalog{
		defaults:  defaults,
		overrides: make(map[string]map[string]string),
		fallback:  fallbackLocale,
	}, nil
}

// Resolve returns the message for key in locale. Lookup order: override,
// default, fallback-locale default, the key itself.
func (c *Catalog) Resolve(locale, key string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))

	c.mu.RLock()
	defer c.mu.RUnlock()

	if msgs, ok := c.overrides[locale]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	if msgs, ok := c.defaults[locale]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	if locale != c.fallback {
		if msgs, ok := c.defaults[c.fallback]; ok {
			if msg, ok := msgs[key]; ok {
				return msg
			}
		}
	}
	return key
}

// Messages returns the effective key→message map for a locale (defaults with
// overrides applied).
func (c *Catalog) Messages(locale string) map[string]string {
	locale = strings.ToLower(strings.TrimSpace(locale))

	c.mu.RLock()
	defer c.mu.RUnlock()

	merged := make(map[string]string)
	for key, msg := range c.defaults[locale] {
		merged[key] = msg
	}
	for key, msg := range c.overrides[locale] {
		merged[key] = msg
	}
	return merged
}

// SetOverrides replaces the in-memory overrides for a locale. Called on
// startup from the persisted override rows and after each admin update.
func (c *Catalog) SetOverrides(locale string, overrides map[string]string) {
	locale = strings.ToLower(strings.TrimSpace(locale))

	c.mu.Lock()
	defer c.mu.Unlock()

	copied := make(map[string]string, len(overrides))
	for key, msg := range overrides {
		copied[key] = msg
	}
	c.overrides[locale] = copied
}

// DefaultLocale returns the configured fallback locale.
func (c *Catalog) DefaultLocale() string {
	return c.fallback
}
