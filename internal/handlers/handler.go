package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/relay"
	"github.com/parleychat/parley/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	hub   *relay.Hub
	store store.MessageStore
	cfg   *config.Config

	logger zerolog.Logger
	// base is the untagged logger handed to websocket clients, which
	// tag themselves.
	base zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(hub *relay.Hub, st store.MessageStore, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		store:  st,
		cfg:    cfg,
		logger: logger.With().Str("component", "http").Logger(),
		base:   logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
