// Package transport abstracts the persistent duplex channel to the server.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by a Conn after Close.
var ErrClosed = errors.New("transport: connection closed")

// Credentials authenticate the channel for one user.
type Credentials struct {
	UserID string
	Token  string
}

// Conn is one open channel. ReadFrame is called from a single goroutine and
// WriteFrame from a single (other) goroutine; Close may be called from any.
type Conn interface {
	// ReadFrame blocks until the next inbound frame arrives.
	ReadFrame(ctx context.Context) ([]byte, error)

	// WriteFrame returns once the transport has accepted the frame.
	WriteFrame(ctx context.Context, frame []byte) error

	// Close tears the channel down and unblocks pending reads.
	Close() error
}

// Dialer opens channels.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, creds Credentials) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, creds Credentials) (Conn, error) {
	return f(ctx, creds)
}
