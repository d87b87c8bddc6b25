package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/tutorchat/internal/middleware"
	"github.com/capitalize-ai/tutorchat/internal/model"
)

// ThreadHandler handles thread list and open-thread endpoints.
type ThreadHandler struct {
	session Session
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(session Session) *ThreadHandler {
	return &ThreadHandler{session: session}
}

// ListThreadsResponse is the thread list with its unread badge.
type ListThreadsResponse struct {
	Threads     []model.Thread `json:"threads"`
	TotalUnread int            `json:"total_unread"`
}

// ScrollRequest reports the viewport position of the open thread.
type ScrollRequest struct {
	DistanceFromBottom float64 `json:"distance_from_bottom"`
}

// List handles GET /api/v1/threads
func (h *ThreadHandler) List(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.Snapshot(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListThreadsResponse{
		Threads:     snap.Threads,
		TotalUnread: snap.TotalUnread,
	})
}

// Refresh handles POST /api/v1/threads/refresh
func (h *ThreadHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.session.RefreshThreads(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Get handles GET /api/v1/threads/{counterpart}?context=
func (h *ThreadHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := threadKey(w, r)
	if !ok {
		return
	}
	view, err := h.session.Thread(r.Context(), key)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Select handles POST /api/v1/threads/{counterpart}/select?context=
func (h *ThreadHandler) Select(w http.ResponseWriter, r *http.Request) {
	key, ok := threadKey(w, r)
	if !ok {
		return
	}
	view, err := h.session.SelectThread(r.Context(), key)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Scroll handles POST /api/v1/scroll
func (h *ThreadHandler) Scroll(w http.ResponseWriter, r *http.Request) {
	var req ScrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DistanceFromBottom < 0 {
		writeError(w, http.StatusBadRequest, "distance_from_bottom must not be negative")
		return
	}

	decision, err := h.session.Scroll(r.Context(), req.DistanceFromBottom)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// JumpToLatest handles POST /api/v1/jump
func (h *ThreadHandler) JumpToLatest(w http.ResponseWriter, r *http.Request) {
	decision, err := h.session.JumpToLatest(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func threadKey(w http.ResponseWriter, r *http.Request) (model.ThreadKey, bool) {
	key := model.ThreadKey{
		CounterpartID: chi.URLParam(r, "counterpart"),
		ContextID:     r.URL.Query().Get("context"),
	}
	if err := middleware.ValidateParticipantID(key.CounterpartID, true); err != nil {
		writeError(w, http.StatusBadRequest, "counterpart: "+err.Error())
		return model.ThreadKey{}, false
	}
	if err := middleware.ValidateParticipantID(key.ContextID, false); err != nil {
		writeError(w, http.StatusBadRequest, "context: "+err.Error())
		return model.ThreadKey{}, false
	}
	return key, true
}
