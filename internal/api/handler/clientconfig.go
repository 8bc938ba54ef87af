package handler

import (
	"net/http"

	"github.com/cityscope/cityscope/internal/api/models"
	"github.com/cityscope/cityscope/internal/api/response"
)

// ClientConfigHandler serves the values the browser viewer boots with.
type ClientConfigHandler struct {
	config models.ClientConfig
}

// NewClientConfigHandler creates a new ClientConfigHandler. The config is
// fixed at startup.
func NewClientConfigHandler(cfg models.ClientConfig) *ClientConfigHandler {
	return &ClientConfigHandler{config: cfg}
}

// GetClientConfig handles GET /v1/config/client.
func (h *ClientConfigHandler) GetClientConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	response.JSON(w, r, http.StatusOK, h.config)
}
