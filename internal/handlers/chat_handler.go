// File: internal/handlers/chat_handler.go
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/yuin/goldmark"

	"github.com/evanmb/go-converse/internal/dtos"
	"github.com/evanmb/go-converse/internal/services"
	"github.com/evanmb/go-converse/internal/services/conversation"
)

type ChatHandler struct {
	chatService *services.ChatService
	markdown    goldmark.Markdown
	logger      services.Logger
}

func NewChatHandler(chatService *services.ChatService, logger services.Logger) (*ChatHandler, error) {
	if chatService == nil {
		return nil, conversation.NewValidationError("constructor", "chat service is required")
	}
	return &ChatHandler{
		chatService: chatService,
		markdown:    goldmark.New(),
		logger:      logger,
	}, nil
}

// GetState returns the full controller snapshot for rendering.
func (h *ChatHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chatService.Snapshot())
}

// CreateConversation starts a new chat and makes it active.
func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	conv := h.chatService.NewChat()
	writeJSON(w, http.StatusCreated, conv)
}

// SelectConversation makes the given conversation active.
func (h *ChatHandler) SelectConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.chatService.SwitchTo(id); err != nil {
		if conversation.IsNotFound(err) {
			writeError(w, "Conversation not found", http.StatusNotFound)
			return
		}
		writeError(w, "Could not select conversation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h.chatService.Snapshot())
}

// DeleteConversation removes a conversation. Deleting the last remaining
// conversation is deliberately a no-op, so this always succeeds.
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	h.chatService.DeleteChat(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

// GetMessages returns a conversation's ordered message log. With
// ?render=html, assistant messages additionally carry markdown-rendered
// HTML.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	messages, err := h.chatService.Messages(id)
	if err != nil {
		if conversation.IsNotFound(err) {
			writeError(w, "Conversation not found", http.StatusNotFound)
			return
		}
		writeError(w, "Could not retrieve messages", http.StatusInternalServerError)
		return
	}

	views := dtos.FromMessages(messages)
	if r.URL.Query().Get("render") == "html" {
		for i := range views {
			if !views[i].IsFromAssistant {
				continue
			}
			var buf bytes.Buffer
			if err := h.markdown.Convert([]byte(views[i].Text), &buf); err != nil {
				h.logger.Warn("markdown rendering failed", "conversation_id", id, "error", err)
				continue
			}
			views[i].HTML = buf.String()
		}
	}
	writeJSON(w, http.StatusOK, views)
}

// writeJSON is a helper for sending JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError is a helper for sending JSON error responses.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, dtos.ErrorResponse{Error: message})
}
