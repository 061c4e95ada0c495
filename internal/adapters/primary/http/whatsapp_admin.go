package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vibin/derma-chat/config"
	"github.com/vibin/derma-chat/internal/core/domain"
)

// setupWhatsAppAdminRoutes sets up routes for the WhatsApp transport
func (h *Handler) setupWhatsAppAdminRoutes(r chi.Router) {
	h.logger.Info("Setting up WhatsApp admin routes")

	r.Route("/whatsapp", func(r chi.Router) {
		r.Get("/groups", h.handleGetGroups)
		r.Post("/groups", h.handleUpdateGroups)
		r.Get("/status", h.handleWhatsAppStatus)
	})
}

// handleGetGroups returns a list of WhatsApp groups
func (h *Handler) handleGetGroups(w http.ResponseWriter, r *http.Request) {
	if !h.whatsappAdapter.IsConnected() {
		h.respondWithError(w, http.StatusServiceUnavailable, "WhatsApp is not connected", kindUnavailable)
		return
	}

	groups, err := h.whatsappAdapter.GetGroups()
	if err != nil {
		h.logger.Error("Failed to get WhatsApp groups", "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get WhatsApp groups", domain.KindInternal)
		return
	}

	h.respondWithJSON(w, http.StatusOK, groups)
}

// handleUpdateGroups updates the list of allowed WhatsApp groups and saves it
func (h *Handler) handleUpdateGroups(w http.ResponseWriter, r *http.Request) {
	var requestData struct {
		AllowedGroups []string `json:"allowed_groups"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestData); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload", kindBadRequest)
		return
	}

	h.configMu.Lock()
	defer h.configMu.Unlock()

	if err := h.whatsappAdapter.UpdateAllowedGroups(requestData.AllowedGroups); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to update allowed groups", domain.KindInternal)
		return
	}

	h.config.WhatsApp.AllowedGroups = append([]string(nil), requestData.AllowedGroups...)

	if err := config.SaveConfig(h.config, config.GetConfigPath()); err != nil {
		h.logger.Error("Failed to save config", "error", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to save configuration", domain.KindInternal)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]string{"message": "WhatsApp groups updated successfully"})
}

// handleWhatsAppStatus returns the status of the WhatsApp connection
func (h *Handler) handleWhatsAppStatus(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"connected": h.whatsappAdapter.IsConnected(),
		"enabled":   h.config.WhatsApp.Enabled,
	})
}
