// Package store is the client for the remote thread and message REST API.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/capitalize-ai/tutorchat/internal/model"
)

// Store is the remote thread/message store.
type Store interface {
	ListThreads(ctx context.Context) ([]model.Thread, error)
	History(ctx context.Context, key model.ThreadKey) ([]model.Message, error)
	SendMessage(ctx context.Context, req SendRequest) (model.Message, error)
	MarkRead(ctx context.Context, key model.ThreadKey) error
	User(ctx context.Context, id string) (model.User, error)
}

// SendRequest is a message submitted over REST.
type SendRequest struct {
	RecipientID string            `json:"recipient_id"`
	ContextID   string            `json:"context_id,omitempty"`
	Body        string            `json:"body"`
	Attachment  *model.Attachment `json:"attachment,omitempty"`
	ClientRef   string            `json:"client_ref,omitempty"`
}

// APIError is a failed store call with a reason fit for display.
type APIError struct {
	Status int
	Reason string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Reason, e.Status)
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Reason returns a human-readable reason for any store error.
func Reason(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.Reason
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "The messaging service is temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out"
	default:
		return "Could not reach the messaging service"
	}
}
