package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/tutorchat/internal/eventloop"
	"github.com/capitalize-ai/tutorchat/internal/middleware"
	"github.com/capitalize-ai/tutorchat/internal/model"
	"github.com/capitalize-ai/tutorchat/internal/readstate"
	"github.com/capitalize-ai/tutorchat/internal/service"
	"github.com/capitalize-ai/tutorchat/pkg/logger"
)

// Session is the part of service.Session the status API drives.
type Session interface {
	Snapshot(ctx context.Context) (service.Snapshot, error)
	Status(ctx context.Context) (model.ConnectionStatus, error)
	Thread(ctx context.Context, key model.ThreadKey) (service.ThreadView, error)
	SelectThread(ctx context.Context, key model.ThreadKey) (service.ThreadView, error)
	SendMessage(ctx context.Context, body string, attachment *model.Attachment) (model.Message, error)
	MarkTyping(ctx context.Context, text string) (bool, error)
	Reconnect(ctx context.Context) error
	Scroll(ctx context.Context, distanceFromBottom float64) (readstate.Decision, error)
	JumpToLatest(ctx context.Context) (readstate.Decision, error)
	RefreshThreads(ctx context.Context) error
	DismissNotice(ctx context.Context, id string) (bool, error)
	Subscribe(fn func(service.Update)) func()
}

// SessionHandler handles session-wide endpoints.
type SessionHandler struct {
	session Session
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(session Session, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		session: session,
		logger:  logger.OrGlobal(log),
	}
}

// Snapshot handles GET /api/v1/session
func (h *SessionHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.Snapshot(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Status handles GET /api/v1/status
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.session.Status(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Reconnect handles POST /api/v1/reconnect
func (h *SessionHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Reconnect(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}
	h.logger.WithRequest(middleware.GetCorrelationID(r.Context()), middleware.GetUserID(r.Context())).
		Info("manual reconnect requested")
	w.WriteHeader(http.StatusAccepted)
}

// DismissNotice handles DELETE /api/v1/notices/{id}
func (h *SessionHandler) DismissNotice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateNoticeID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	found, err := h.session.DismissNotice(r.Context(), id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "notice not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeSessionError maps session errors to responses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, eventloop.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "session stopped")
	case errors.Is(err, service.ErrNoActiveThread):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "request cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
