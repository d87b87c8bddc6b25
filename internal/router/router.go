// Package router decodes inbound frames and dispatches them by kind to the
// subsystems that own them, keyed by conversation.
package router

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/tutorchat/internal/model"
	"github.com/capitalize-ai/tutorchat/internal/protocol"
	"github.com/capitalize-ai/tutorchat/pkg/logger"
	"github.com/capitalize-ai/tutorchat/pkg/metrics"
)

// ErrForeignFrame is returned for frames that do not belong to any of the
// current user's conversations.
var ErrForeignFrame = errors.New("frame does not concern current user")

// Routed is a decoded event together with the conversation it belongs to.
type Routed struct {
	Thread model.ThreadKey
	Event  protocol.Event
}

// HandlerFunc consumes routed events.
type HandlerFunc func(Routed)

// Router dispatches frames synchronously in arrival order. It is not safe for
// concurrent use; it runs on the session loop.
type Router struct {
	self     string
	handlers map[protocol.Kind][]HandlerFunc
	logger   *logger.Logger
}

// New creates a router for the given user.
func New(self string, log *logger.Logger) *Router {
	return &Router{
		self:     self,
		handlers: make(map[protocol.Kind][]HandlerFunc),
		logger:   logger.OrGlobal(log).Named("router"),
	}
}

// Handle subscribes h to events of kind. Handlers run in subscription order.
func (r *Router) Handle(kind protocol.Kind, h HandlerFunc) {
	r.handlers[kind] = append(r.handlers[kind], h)
}

// Dispatch decodes frame and runs its handlers. Frames that cannot be decoded
// or resolved are dropped, logged and counted; the error is returned for
// callers that care.
func (r *Router) Dispatch(frame []byte) error {
	ev, err := protocol.Decode(frame)
	if err != nil {
		r.drop(reason(err), err, frame)
		return err
	}

	thread, err := r.resolve(ev)
	if err != nil {
		r.drop(reason(err), err, frame)
		return err
	}

	metrics.FramesReceivedTotal.WithLabelValues(string(ev.Kind)).Inc()
	routed := Routed{Thread: thread, Event: ev}
	for _, h := range r.handlers[ev.Kind] {
		h(routed)
	}
	return nil
}

func (r *Router) resolve(ev protocol.Event) (model.ThreadKey, error) {
	switch ev.Kind {
	case protocol.KindMessageCreated:
		msg := ev.Message
		if msg.SenderID != r.self && msg.RecipientID != r.self {
			return model.ThreadKey{}, fmt.Errorf("%w: message %s", ErrForeignFrame, msg.ID)
		}
		return msg.Thread(r.self), nil

	case protocol.KindMessageRead:
		read := ev.Read
		if read.ReaderID != r.self {
			return model.ThreadKey{CounterpartID: read.ReaderID, ContextID: read.ContextID}, nil
		}
		if read.CounterpartID == "" {
			return model.ThreadKey{}, fmt.Errorf("%w: own read receipt without counterpart", protocol.ErrMalformedFrame)
		}
		return model.ThreadKey{CounterpartID: read.CounterpartID, ContextID: read.ContextID}, nil

	case protocol.KindTyping:
		if ev.Typing.UserID == r.self {
			return model.ThreadKey{}, fmt.Errorf("%w: own typing echo", ErrForeignFrame)
		}
		return model.ThreadKey{CounterpartID: ev.Typing.UserID, ContextID: ev.Typing.ContextID}, nil

	case protocol.KindPresence:
		return model.ThreadKey{CounterpartID: ev.Presence.UserID}, nil
	}
	return model.ThreadKey{}, fmt.Errorf("%w: %q", protocol.ErrUnknownFrame, ev.Kind)
}

func (r *Router) drop(reason string, err error, frame []byte) {
	metrics.FramesDroppedTotal.WithLabelValues(reason).Inc()
	r.logger.Warn("dropping inbound frame",
		zap.String("reason", reason),
		zap.Int("size", len(frame)),
		zap.Error(err),
	)
}

func reason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrUnknownFrame):
		return "unknown"
	case errors.Is(err, ErrForeignFrame):
		return "foreign"
	default:
		return "malformed"
	}
}
