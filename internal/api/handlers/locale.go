package handlers

import (
	"net/http"
	"strings"

	"github.com/tradeconnect/server/internal/domain/localization"
)

// requestLocale picks the response locale from Accept-Language, falling back
// to the platform default. Only the primary language tag is considered.
func requestLocale(r *http.Request) string {
	header := r.Header.Get("Accept-Language")
	for _, part := range strings.Split(header, ",") {
		tag := strings.ToLower(strings.TrimSpace(part))
		if i := strings.IndexAny(tag, "-;"); i >= 0 {
			tag = tag[:i]
		}
		if localization.IsSupportedLocale(tag) {
			return tag
		}
	}
	return localization.LocaleSpanish
}

type localizer interface {
	Resolve(locale, key string) string
}

// resolveMsg localizes a catalog key for the request, tolerating a nil
// localizer in tests.
func resolveMsg(l localizer, r *http.Request, key string) string {
	if l == nil {
		return key
	}
	return l.Resolve(requestLocale(r), key)
}
