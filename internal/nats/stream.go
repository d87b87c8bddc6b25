package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/capitalize-ai/tutorchat/internal/transport"
)

// SubjectPrefix is the prefix for all chat subjects.
const SubjectPrefix = "chat"

const defaultFlushTimeout = 10 * time.Second

var subjectEscaper = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// InboundSubject carries frames from the server to a user.
func InboundSubject(userID string) string {
	return fmt.Sprintf("%s.%s.in", SubjectPrefix, subjectEscaper.Replace(userID))
}

// OutboundSubject carries frames from a user to the server.
func OutboundSubject(userID string) string {
	return fmt.Sprintf("%s.%s.out", SubjectPrefix, subjectEscaper.Replace(userID))
}

// channel is a transport.Conn over one NATS connection.
type channel struct {
	nc       *nats.Conn
	sub      *nats.Subscription
	outbound string

	closeOnce sync.Once
	closed    chan struct{}
}

func newChannel(nc *nats.Conn, sub *nats.Subscription, outbound string) *channel {
	return &channel{nc: nc, sub: sub, outbound: outbound, closed: make(chan struct{})}
}

func (c *channel) ReadFrame(ctx context.Context) ([]byte, error) {
	msg, err := c.sub.NextMsgWithContext(ctx)
	if err != nil {
		if c.isClosed() {
			return nil, transport.ErrClosed
		}
		return nil, fmt.Errorf("nats read: %w", err)
	}
	return msg.Data, nil
}

// WriteFrame publishes and flushes, so a nil return means the server has the
// frame.
func (c *channel) WriteFrame(ctx context.Context, frame []byte) error {
	if c.isClosed() {
		return transport.ErrClosed
	}
	if err := c.nc.Publish(c.outbound, frame); err != nil {
		return c.writeErr(err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultFlushTimeout)
		defer cancel()
	}
	if err := c.nc.FlushWithContext(ctx); err != nil {
		return c.writeErr(err)
	}
	return nil
}

func (c *channel) writeErr(err error) error {
	if c.isClosed() && errors.Is(err, nats.ErrConnectionClosed) {
		return transport.ErrClosed
	}
	return fmt.Errorf("nats write: %w", err)
}

func (c *channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.nc.Close()
	})
	return nil
}

func (c *channel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
