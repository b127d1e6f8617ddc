package controller

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/syncroom/internal/service/room"
)

type envelope map[string]any

func (c controller) getHealth(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(w, http.StatusOK, envelope{
		"status":      "ok",
		"rooms":       c.roomService.RoomsCount(),
		"connections": c.roomService.ConnectionsCount(),
	})
}

func (c controller) getRoom(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	info, err := c.roomService.GetRoomInfo(r.Context(), roomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			c.writeJSON(w, http.StatusNotFound, envelope{"error": "room not found"})
			return
		}

		c.logger.ErrorContext(r.Context(), "failed to get room info", "error", err)
		c.writeJSON(w, http.StatusInternalServerError, envelope{"error": "internal error"})
		return
	}

	c.writeJSON(w, http.StatusOK, envelope{"data": info})
}

func (c controller) getTranscript(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")

	msgs, err := c.roomService.GetTranscript(r.Context(), roomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			c.writeJSON(w, http.StatusNotFound, envelope{"error": "room not found"})
			return
		}

		c.logger.ErrorContext(r.Context(), "failed to get transcript", "error", err)
		c.writeJSON(w, http.StatusInternalServerError, envelope{"error": "internal error"})
		return
	}

	c.writeJSON(w, http.StatusOK, envelope{"data": msgs})
}
