package handlers

import (
	"errors"
	"net/http"

	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/audit"
	"github.com/tradeconnect/server/internal/domain/localization"
)

type LocalizationHandler struct {
	Service *localization.Service
	Audit   *audit.Service
	Env     string
}

func NewLocalizationHandler(service *localization.Service, auditSvc *audit.Service, env string) *LocalizationHandler {
	return &LocalizationHandler{Service: service, Audit: auditSvc, Env: env}
}

func (h *LocalizationHandler) Locales(w http.ResponseWriter, r *http.Request) {
	respond.OK(w, http.StatusOK, "", map[string]any{
		"locales": localization.SupportedLocales,
		"default": localization.LocaleSpanish,
	})
}

func (h *LocalizationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	locale := pathParam(r, "locale")
	messages, err := h.Service.Messages(r.Context(), locale)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, "", messages)
}

// UpdateOverrides replaces or removes catalog overrides for a locale. An
// empty message deletes the override so the built-in default shows again.
func (h *LocalizationHandler) UpdateOverrides(w http.ResponseWriter, r *http.Request) {
	var overrides map[string]string
	if err := decodeJSON(r, &overrides); err != nil {
		respond.Error(w, r, respond.CodeValidation, "", err, h.Env)
		return
	}

	locale := pathParam(r, "locale")
	if err := h.Service.UpdateOverrides(r.Context(), locale, overrides); err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.Audit != nil {
		h.Audit.Success(r, "i18n.overrides.update", "locale", locale, nil)
	}

	messages, err := h.Service.Messages(r.Context(), locale)
	if err != nil {
		respond.Internal(w, r, err, h.Env)
		return
	}
	respond.OK(w, http.StatusOK, "", messages)
}

func (h *LocalizationHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, localization.ErrUnsupportedLocale) {
		respond.Error(w, r, respond.CodeValidation, err.Error(), err, h.Env)
		return
	}
	respond.Internal(w, r, err, h.Env)
}
