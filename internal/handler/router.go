package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/tutorchat/internal/middleware"
	"github.com/capitalize-ai/tutorchat/pkg/logger"
)

// RouterConfig wires the status API.
type RouterConfig struct {
	Session        Session
	UserID         string
	Token          string
	AllowedOrigins []string
	RateLimit      int
	RateWindow     time.Duration
	Heartbeat      time.Duration
	Logger         *logger.Logger
}

// NewRouter builds the local status API. Health and metrics endpoints are
// public; everything under /api/v1 requires the session token.
func NewRouter(cfg RouterConfig) http.Handler {
	log := logger.OrGlobal(cfg.Logger)

	healthHandler := NewHealthHandler(cfg.Session)
	sessionHandler := NewSessionHandler(cfg.Session, log)
	threadHandler := NewThreadHandler(cfg.Session)
	messageHandler := NewMessageHandler(cfg.Session)
	streamHandler := NewStreamHandler(cfg.Session, cfg.Heartbeat, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Token, cfg.UserID))
		if cfg.RateLimit > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateWindow))
		}

		r.Get("/session", sessionHandler.Snapshot)
		r.Get("/status", sessionHandler.Status)
		r.Post("/reconnect", sessionHandler.Reconnect)
		r.Delete("/notices/{id}", sessionHandler.DismissNotice)

		r.Get("/threads", threadHandler.List)
		r.Post("/threads/refresh", threadHandler.Refresh)
		r.Get("/threads/{counterpart}", threadHandler.Get)
		r.Post("/threads/{counterpart}/select", threadHandler.Select)
		r.Post("/scroll", threadHandler.Scroll)
		r.Post("/jump", threadHandler.JumpToLatest)

		r.Post("/messages", messageHandler.Send)
		r.Post("/typing", messageHandler.Typing)

		r.Get("/events", streamHandler.Stream)
	})

	return r
}
