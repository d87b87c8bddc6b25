package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/capitalize-ai/tutorchat/internal/auth"
	"github.com/capitalize-ai/tutorchat/internal/config"
	"github.com/capitalize-ai/tutorchat/internal/connection"
	"github.com/capitalize-ai/tutorchat/internal/handler"
	natsclient "github.com/capitalize-ai/tutorchat/internal/nats"
	"github.com/capitalize-ai/tutorchat/internal/service"
	"github.com/capitalize-ai/tutorchat/internal/store"
	"github.com/capitalize-ai/tutorchat/internal/transport"
	"github.com/capitalize-ai/tutorchat/pkg/logger"
	"github.com/capitalize-ai/tutorchat/pkg/tracing"
)

const shutdownTimeout = 30 * time.Second

func newRunCmd() *cobra.Command {
	var (
		transportName string
		statusAddr    string
		logLevel      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect and serve the local status API",
		Long:  "Connects as the user named by CHAT_TOKEN, keeps the conversations in sync and serves them on STATUS_ADDR until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("transport") {
				cfg.Transport = transportName
			}
			if cmd.Flags().Changed("status-addr") {
				cfg.StatusAddr = statusAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&transportName, "transport", config.TransportWebSocket, "channel transport: websocket or nats")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "listen address of the status API")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	// Initialize logger
	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chatsync", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background(), tp) }()
		}
	}

	provider, err := auth.NewTokenProvider(cfg.Token, nil)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	log.Info("starting chatsync",
		zap.String("user_id", provider.UserID()),
		zap.String("transport", cfg.Transport),
		zap.String("status_addr", cfg.StatusAddr),
	)

	dialer, err := newDialer(cfg, log)
	if err != nil {
		return err
	}

	var outbox connection.Outbox
	if cfg.OutboxPath != "" {
		// The session owns the outbox from here and closes it on shutdown.
		outbox, err = connection.OpenBadgerOutbox(cfg.OutboxPath)
		if err != nil {
			return fmt.Errorf("open outbox: %w", err)
		}
	}

	api := store.NewClient(store.Config{
		BaseURL:          cfg.APIBaseURL,
		Timeout:          cfg.APITimeout,
		FailureThreshold: cfg.BreakerFailures,
		OpenDuration:     cfg.BreakerOpenDuration,
	}, provider, log)

	session, err := service.New(service.Options{
		UserID:      provider.UserID(),
		Dialer:      dialer,
		Credentials: provider,
		Store:       api,
		Outbox:      outbox,
		Connection: connection.Config{
			BaseDelay:    cfg.ReconnectBaseDelay,
			MaxDelay:     cfg.ReconnectMaxDelay,
			MaxAttempts:  cfg.ReconnectMaxAttempts,
			Jitter:       cfg.ReconnectJitter,
			WriteTimeout: cfg.HandshakeTimeout,
		},
		TypingDebounce:  cfg.TypingDebounce,
		TypingExpiry:    cfg.TypingExpiry,
		MatchWindow:     cfg.MatchWindow,
		ScrollThreshold: cfg.ScrollThreshold,
		Rules:           rulesFromConfig(cfg),
		RequestTimeout:  cfg.APITimeout,
	}, log)
	if err != nil {
		if outbox != nil {
			_ = outbox.Close()
		}
		return fmt.Errorf("create session: %w", err)
	}

	server := &http.Server{
		Addr: cfg.StatusAddr,
		Handler: handler.NewRouter(handler.RouterConfig{
			Session:        session,
			UserID:         provider.UserID(),
			Token:          cfg.StatusToken,
			AllowedOrigins: cfg.AllowedOrigins,
			RateLimit:      cfg.RateLimitRequests,
			RateWindow:     cfg.RateLimitWindow,
			Logger:         log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: /api/v1/events streams for the life of the client.
		IdleTimeout: 60 * time.Second,
	}
	if cfg.StatusToken == "" {
		log.Warn("STATUS_TOKEN is not set; the status API accepts unauthenticated requests")
	}

	sup := newSupervisor(log)
	sup.Add(session)
	sup.Add(newHTTPService(server, shutdownTimeout))

	err = sup.Serve(ctx)
	log.Info("chatsync stopped")
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		// Interrupted.
		return nil
	}
	return err
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	if cfg.Environment == "development" {
		return logger.NewDevelopment()
	}
	return logger.New(cfg.LogLevel)
}

func newDialer(cfg *config.Config, log *logger.Logger) (transport.Dialer, error) {
	switch cfg.Transport {
	case config.TransportWebSocket:
		return transport.NewWebSocketDialer(transport.WebSocketConfig{
			URL:              cfg.ChannelURL,
			HandshakeTimeout: cfg.HandshakeTimeout,
			PingInterval:     cfg.PingInterval,
			ReadTimeout:      cfg.ReadTimeout,
		}, log), nil
	case config.TransportNATS:
		return natsclient.NewDialer(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Timeout:  cfg.HandshakeTimeout,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func newSupervisor(log *logger.Logger) *suture.Supervisor {
	log = log.Named("supervisor")
	return suture.New("chatsync", suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn("supervisor event",
				zap.String("type", fmt.Sprint(e.Type())),
				zap.String("event", e.String()),
			)
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})
}
