package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/capitalize-ai/tutorchat/internal/middleware"
	"github.com/capitalize-ai/tutorchat/internal/service"
	"github.com/capitalize-ai/tutorchat/pkg/logger"
	"github.com/capitalize-ai/tutorchat/pkg/metrics"
)

const (
	defaultHeartbeat = 30 * time.Second
	streamBuffer     = 64
)

// StreamHandler pushes session updates to the browser as server-sent events.
type StreamHandler struct {
	session   Session
	heartbeat time.Duration
	logger    *logger.Logger
}

// NewStreamHandler creates a new stream handler. A zero heartbeat uses 30s.
func NewStreamHandler(session Session, heartbeat time.Duration, log *logger.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &StreamHandler{
		session:   session,
		heartbeat: heartbeat,
		logger:    logger.OrGlobal(log),
	}
}

// HeartbeatEvent keeps idle streams open through proxies.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// Stream handles GET /api/v1/events
//
// The first event is a full snapshot. Later events are service.Update values
// naming what changed; clients re-read the affected state. When a client
// falls behind, a "resync" event replaces the dropped updates.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.logger.WithRequest(middleware.GetCorrelationID(ctx), middleware.GetUserID(ctx))

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	snap, err := h.session.Snapshot(ctx)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	metrics.IncrementEventStreams()
	defer metrics.DecrementEventStreams()

	updates := make(chan service.Update, streamBuffer)
	overflow := make(chan struct{}, 1)
	unsubscribe := h.session.Subscribe(func(u service.Update) {
		// Runs on the session loop; never block it.
		select {
		case updates <- u:
		default:
			select {
			case overflow <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := sendSSEEvent(w, flusher, "snapshot", snap); err != nil {
		log.Warn("failed to write snapshot event", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("event stream client disconnected")
			return

		case u := <-updates:
			if err := sendSSEEvent(w, flusher, string(u.Kind), u); err != nil {
				log.Warn("failed to write event", zap.String("kind", string(u.Kind)), zap.Error(err))
				return
			}

		case <-overflow:
			snap, err := h.session.Snapshot(ctx)
			if err != nil {
				return
			}
			// Updates buffered before the snapshot are already reflected in it.
			for len(updates) > 0 {
				<-updates
			}
			if err := sendSSEEvent(w, flusher, "resync", snap); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, "heartbeat", &HeartbeatEvent{Timestamp: time.Now()}); err != nil {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
