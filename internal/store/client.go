package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/tutorchat/internal/auth"
	"github.com/capitalize-ai/tutorchat/internal/model"
	"github.com/capitalize-ai/tutorchat/pkg/logger"
	"github.com/capitalize-ai/tutorchat/pkg/metrics"
	"github.com/capitalize-ai/tutorchat/pkg/tracing"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20

// Config configures the HTTP client.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	FailureThreshold int
	OpenDuration     time.Duration
}

// Client talks to the REST API over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	auth    auth.Provider
	breaker *gobreaker.CircuitBreaker[[]byte]
	tracer  trace.Tracer
	logger  *logger.Logger
}

// NewClient creates a store client.
func NewClient(cfg Config, provider auth.Provider, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = 30 * time.Second
	}
	log = logger.OrGlobal(log).Named("store")

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "rest-store",
		MaxRequests: 1,
		Timeout:     cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		IsSuccessful: func(err error) bool {
			// Client errors mean the service is up.
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && !apiErr.Temporary())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		auth:    provider,
		breaker: breaker,
		tracer:  tracing.Tracer(),
		logger:  log,
	}
}

type threadsResponse struct {
	Threads []model.Thread `json:"threads"`
}

type messagesResponse struct {
	Messages []model.Message `json:"messages"`
}

type messageResponse struct {
	Message model.Message `json:"message"`
}

type markReadRequest struct {
	CounterpartID string `json:"counterpart_id"`
	ContextID     string `json:"context_id,omitempty"`
}

// ListThreads returns the user's conversations.
func (c *Client) ListThreads(ctx context.Context) ([]model.Thread, error) {
	var resp threadsResponse
	if err := c.call(ctx, "list_threads", http.MethodGet, "/messages/threads", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Threads, nil
}

// History returns the messages of a thread.
func (c *Client) History(ctx context.Context, key model.ThreadKey) ([]model.Message, error) {
	query := url.Values{"counterpart_id": {key.CounterpartID}}
	if key.ContextID != "" {
		query.Set("context_id", key.ContextID)
	}
	var resp messagesResponse
	if err := c.call(ctx, "history", http.MethodGet, "/messages/history", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage submits a message and returns the stored record.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (model.Message, error) {
	var resp messageResponse
	if err := c.call(ctx, "send_message", http.MethodPost, "/messages", nil, req, &resp); err != nil {
		return model.Message{}, err
	}
	return resp.Message, nil
}

// MarkRead marks every message in a thread read.
func (c *Client) MarkRead(ctx context.Context, key model.ThreadKey) error {
	req := markReadRequest{CounterpartID: key.CounterpartID, ContextID: key.ContextID}
	return c.call(ctx, "mark_read", http.MethodPost, "/messages/read", nil, req, nil)
}

// User returns basic profile information.
func (c *Client) User(ctx context.Context, id string) (model.User, error) {
	var user model.User
	if err := c.call(ctx, "get_user", http.MethodGet, "/users/"+url.PathEscape(id), nil, nil, &user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	ctx, span := c.tracer.Start(ctx, "store."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, method, path, query, in)
	})

	status := "ok"
	if err != nil {
		status = "error"
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status != 0 {
			status = strconv.Itoa(apiErr.Status)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, Reason(err))
		c.logger.Warn("store call failed", zap.String("operation", op), zap.Error(err))
	}
	metrics.RecordStoreRequest(op, status, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: %w", op, &APIError{Reason: "Unexpected response from the messaging service"})
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in any) ([]byte, error) {
	creds, err := c.auth.Credentials(ctx)
	if err != nil {
		return nil, &APIError{Status: http.StatusUnauthorized, Reason: "Your session has expired, please sign in again"}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Reason: errorReason(resp.StatusCode, data)}
	}
	return data, nil
}

// errorReason extracts the server's message from an error body.
func errorReason(status int, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	switch {
	case status == http.StatusUnauthorized:
		return "Your session has expired, please sign in again"
	case status == http.StatusNotFound:
		return "Not found"
	case status == http.StatusTooManyRequests:
		return "Too many requests, please slow down"
	case status >= 500:
		return "The messaging service had a problem"
	default:
		return http.StatusText(status)
	}
}
