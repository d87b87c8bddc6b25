package handler

import (
	"errors"
	"net/http"

	"github.com/capitalize-ai/tutorchat/internal/model"
	"github.com/capitalize-ai/tutorchat/internal/validation"
)

// MessageHandler handles composing in the open thread.
type MessageHandler struct {
	session Session
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(session Session) *MessageHandler {
	return &MessageHandler{session: session}
}

// SendMessageRequest is a message for the open thread.
type SendMessageRequest struct {
	Body       string            `json:"body"`
	Attachment *model.Attachment `json:"attachment,omitempty"`
}

// TypingRequest carries the current composer text.
type TypingRequest struct {
	Text string `json:"text"`
}

// TypingResponse says whether a typing signal went out.
type TypingResponse struct {
	Sent bool `json:"sent"`
}

// Send handles POST /api/v1/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Attachment != nil && req.Attachment.URL == "" {
		writeError(w, http.StatusBadRequest, "attachment url is required")
		return
	}

	msg, err := h.session.SendMessage(r.Context(), req.Body, req.Attachment)
	if err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, verr.Message)
			return
		}
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, msg)
}

// Typing handles POST /api/v1/typing
func (h *MessageHandler) Typing(w http.ResponseWriter, r *http.Request) {
	var req TypingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sent, err := h.session.MarkTyping(r.Context(), req.Text)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TypingResponse{Sent: sent})
}
