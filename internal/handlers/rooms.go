package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parleychat/parley/internal/models"
)

// RoomListResponse represents the active rooms list response.
type RoomListResponse struct {
	Rooms []string `json:"rooms"`
	Total int      `json:"total"`
}

// ListRooms handles listing rooms that currently hold messages. This is the
// REST view of the same distinct-room scan the relay broadcasts after joins.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.store.DistinctRooms(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("distinct rooms scan failed")
		h.Error(w, http.StatusInternalServerError, "storage error")
		return
	}

	h.JSON(w, http.StatusOK, RoomListResponse{
		Rooms: rooms,
		Total: len(rooms),
	})
}

// RoomHistoryResponse represents a room's message history response.
type RoomHistoryResponse struct {
	Room     string           `json:"room"`
	Messages []models.Message `json:"messages"`
}

// RoomHistory handles fetching a room's full message history, oldest first.
// An unknown room yields an empty list, matching the relay's join behavior.
func (h *Handler) RoomHistory(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	if room == "" {
		h.Error(w, http.StatusBadRequest, "room is required")
		return
	}

	messages, err := h.store.History(r.Context(), room)
	if err != nil {
		h.logger.Error().Err(err).Str("room", room).Msg("history read failed")
		h.Error(w, http.StatusInternalServerError, "storage error")
		return
	}

	h.JSON(w, http.StatusOK, RoomHistoryResponse{
		Room:     room,
		Messages: messages,
	})
}
