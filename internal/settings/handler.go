package settings

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/lead-agent/internal/api"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler serves the admin /config routes.
type Handler struct {
	mgr *Manager
}

// NewHandler creates the settings HTTP handler.
func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

// RegisterRoutes registers the settings routes. Callers are expected to
// wrap them with admin authorization.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/config", h.GetAll)
	r.Put("/config", h.UpdateAll)
	r.Get("/config/history", h.History)
	r.Get("/config/validate", h.Validate)
	r.Get("/config/{section}", h.GetSection)
	r.Put("/config/llm", h.UpdateLLM)
	r.Put("/config/crm", h.UpdateCRM)
	r.Put("/config/webhook", h.UpdateWebhook)
	r.Put("/config/extraction", h.UpdateExtraction)
	r.Post("/config/reset", h.Reset)
}

// GetAll returns every section, or the one named by the section query
// parameter.
func (h *Handler) GetAll(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("section")
	if name == "" {
		api.JSON(w, http.StatusOK, h.mgr.Get())
		return
	}
	h.writeSection(w, name)
}

// UpdateAll changes several sections in one write.
func (h *Handler) UpdateAll(w http.ResponseWriter, r *http.Request) {
	var u Update
	if err := api.DecodeJSON(r, &u); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	s, err := h.mgr.Apply(u)
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrNoUpdates):
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	case errors.As(err, &verrs):
		api.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		slog.Error("Failed to update settings", "error", err, "sections", u.Sections())
		api.Error(w, http.StatusInternalServerError, "failed to update configuration")
		return
	}

	slog.Info("Settings updated", "sections", u.Sections())
	api.JSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"message":          "Configuration updated successfully",
		"updated_sections": u.Sections(),
		"last_updated":     s.LastUpdated,
	})
}

// Validate reports whether each section of the current settings is valid.
func (h *Handler) Validate(w http.ResponseWriter, _ *http.Request) {
	v := h.mgr.Validate()
	api.JSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"validation":    v.Sections,
		"overall_valid": v.OverallValid,
	})
}

// GetSection returns one section by name.
func (h *Handler) GetSection(w http.ResponseWriter, r *http.Request) {
	h.writeSection(w, chi.URLParam(r, "section"))
}

func (h *Handler) writeSection(w http.ResponseWriter, name string) {
	section, err := h.mgr.Section(name)
	if errors.Is(err, ErrUnknownSection) {
		api.Error(w, http.StatusNotFound, err.Error())
		return
	}
	api.JSON(w, http.StatusOK, map[string]interface{}{"section": name, "settings": section})
}

// UpdateLLM changes LLM settings.
func (h *Handler) UpdateLLM(w http.ResponseWriter, r *http.Request) {
	var u LLMUpdate
	if err := api.DecodeJSON(r, &u); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	current, err := h.mgr.UpdateLLM(u)
	respondUpdate(w, "LLM", current, err)
}

// UpdateCRM changes CRM settings.
func (h *Handler) UpdateCRM(w http.ResponseWriter, r *http.Request) {
	var u CRMUpdate
	if err := api.DecodeJSON(r, &u); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	current, err := h.mgr.UpdateCRM(u)
	respondUpdate(w, "CRM", current, err)
}

// UpdateWebhook changes webhook settings.
func (h *Handler) UpdateWebhook(w http.ResponseWriter, r *http.Request) {
	var u WebhookUpdate
	if err := api.DecodeJSON(r, &u); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	current, err := h.mgr.UpdateWebhook(u)
	respondUpdate(w, "Webhook", current, err)
}

// UpdateExtraction changes extraction settings.
func (h *Handler) UpdateExtraction(w http.ResponseWriter, r *http.Request) {
	var u ExtractionUpdate
	if err := api.DecodeJSON(r, &u); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	current, err := h.mgr.UpdateExtraction(u)
	respondUpdate(w, "Extraction", current, err)
}

func respondUpdate(w http.ResponseWriter, name string, current interface{}, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		api.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		slog.Error("Failed to update settings", "error", err, "section", name)
		api.Error(w, http.StatusInternalServerError, "failed to update "+name+" settings")
		return
	}

	slog.Info("Settings updated", "section", name)
	api.JSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"message":          name + " settings updated successfully",
		"current_settings": current,
	})
}

// Reset restores the defaults.
func (h *Handler) Reset(w http.ResponseWriter, _ *http.Request) {
	s, err := h.mgr.Reset()
	if err != nil {
		slog.Error("Failed to reset settings", "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to reset configuration")
		return
	}
	slog.Info("Settings reset to defaults")
	api.JSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"message":        "Configuration reset to defaults successfully",
		"default_config": s,
	})
}

// History reports when settings were last persisted.
func (h *Handler) History(w http.ResponseWriter, _ *http.Request) {
	api.JSON(w, http.StatusOK, map[string]interface{}{"success": true, "history": h.mgr.History()})
}
