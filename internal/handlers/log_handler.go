// File: internal/handlers/log_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/evanmb/go-converse/internal/domain"
	"github.com/evanmb/go-converse/internal/dtos"
	"github.com/evanmb/go-converse/internal/repository/eventlog"
	"github.com/evanmb/go-converse/internal/services"
)

type LogHandler struct {
	repo   eventlog.EventLogRepository
	logger services.Logger
}

func NewLogHandler(repo eventlog.EventLogRepository, logger services.Logger) *LogHandler {
	return &LogHandler{repo: repo, logger: logger}
}

// CreateEvent persists a log event reported by the browser frontend.
func (h *LogHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var payload dtos.ClientEventRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	event := domain.ClientEvent{
		Level:   payload.Level,
		Message: payload.Message,
	}
	if payload.Context != nil {
		if raw, err := json.Marshal(payload.Context); err == nil {
			event.Context = string(raw)
		}
	}

	if _, err := h.repo.Create(r.Context(), &event); err != nil {
		if errors.Is(err, eventlog.ErrInvalidEvent) {
			writeError(w, "Invalid log event", http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to persist client event", "error", err)
		writeError(w, "Could not store event", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecentEvents lists the most recently reported client events.
func (h *LogHandler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.repo.FindRecent(r.Context(), parseLimit(r, "limit", 50))
	if err != nil {
		writeError(w, "Could not list events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// parseLimit reads an optional positive integer query parameter.
func parseLimit(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
