package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/tutorchat/internal/connection"
	"github.com/capitalize-ai/tutorchat/internal/model"
	"github.com/capitalize-ai/tutorchat/internal/protocol"
	"github.com/capitalize-ai/tutorchat/internal/readstate"
	"github.com/capitalize-ai/tutorchat/internal/store"
	"github.com/capitalize-ai/tutorchat/internal/validation"
)

// SelectThread opens key. The thread is marked read and its history is
// fetched in the background; the returned view may still be loading.
func (s *Session) SelectThread(ctx context.Context, key model.ThreadKey) (ThreadView, error) {
	if key.IsZero() {
		return ThreadView{}, fmt.Errorf("select thread: %w", ErrNoActiveThread)
	}
	var view ThreadView
	err := s.do(ctx, func() {
		s.selectThread(key)
		view = s.view(key)
	})
	return view, err
}

func (s *Session) selectThread(key model.ThreadKey) {
	unread := 0
	t, known := s.threads.Get(key)
	if known {
		unread = t.UnreadCount
	}

	s.active = key
	s.threads.SetActive(key)
	tl := s.messages.Timeline(key)
	if d := s.tracker.Open(key, tl.Messages(), unread); d.MarkRead {
		s.markRead(key)
	}
	s.fetchHistory(key)
	if !known {
		s.fetchUser(key.CounterpartID)
	}

	s.logger.Debug("thread selected", zap.String("thread", key.String()), zap.Int("unread", unread))
	s.publish(Update{Kind: UpdateThreads})
	s.publish(Update{Kind: UpdateMessages, Thread: key.String()})
}

// SendMessage validates body and sends it to the open thread. The message
// appears immediately with a temporary id and is transmitted as soon as the
// channel allows. Validation failures never reach the queue.
func (s *Session) SendMessage(ctx context.Context, body string, attachment *model.Attachment) (model.Message, error) {
	body, err := s.validator.Body(body)
	if err != nil {
		// An attachment may go without text.
		if attachment == nil || !errors.Is(err, validation.ErrEmptyBody) {
			return model.Message{}, err
		}
		body = ""
	}

	var (
		msg     model.Message
		sendErr error
	)
	err = s.do(ctx, func() {
		if s.active.IsZero() {
			sendErr = ErrNoActiveThread
			return
		}
		msg, sendErr = s.sendMessage(s.active, body, attachment)
	})
	if err != nil {
		return model.Message{}, err
	}
	return msg, sendErr
}

func (s *Session) sendMessage(key model.ThreadKey, body string, attachment *model.Attachment) (model.Message, error) {
	tempID := model.TemporaryIDPrefix + uuid.NewString()
	msg := model.Message{
		ID:          tempID,
		ClientRef:   tempID,
		SenderID:    s.self,
		RecipientID: key.CounterpartID,
		ContextID:   key.ContextID,
		Body:        body,
		Attachment:  attachment,
		CreatedAt:   s.sched.Now(),
		State:       model.StateSent,
	}

	payload, err := protocol.Encode(protocol.KindSendMessage, protocol.SendMessage{
		ClientRef:   tempID,
		RecipientID: key.CounterpartID,
		ContextID:   key.ContextID,
		Body:        body,
		Attachment:  attachment,
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("encode message: %w", err)
	}

	tl := s.messages.Timeline(key)
	tl.AddOptimistic(msg)
	if _, reload := s.threads.Apply(msg, true); reload {
		s.fetchThreads()
	}
	s.tracker.OnMessage(key, true, tl.Messages())
	// A sent message ends the local typing burst.
	s.typing.Input(key, "")

	s.manager.Send(connection.Frame{Kind: protocol.KindSendMessage, Thread: key, Payload: payload})

	s.publish(Update{Kind: UpdateMessages, Thread: key.String()})
	s.publish(Update{Kind: UpdateThreads})
	return msg, nil
}

// MarkTyping reports the composer text of the open thread. It returns whether
// a typing signal was sent.
func (s *Session) MarkTyping(ctx context.Context, text string) (bool, error) {
	var sent bool
	err := s.do(ctx, func() {
		if s.active.IsZero() {
			return
		}
		sent = s.typing.Input(s.active, text)
	})
	return sent, err
}

// Reconnect is the manual retry after the channel gave up.
func (s *Session) Reconnect(ctx context.Context) error {
	return s.do(ctx, func() {
		s.logger.Info("manual reconnect requested")
		s.manager.Reconnect()
	})
}

// Scroll reports the open thread's viewport distance from the bottom.
func (s *Session) Scroll(ctx context.Context, distanceFromBottom float64) (readstate.Decision, error) {
	var d readstate.Decision
	err := s.do(ctx, func() {
		if s.active.IsZero() {
			return
		}
		d = s.tracker.Scroll(s.active, distanceFromBottom, s.activeMessages())
		if d.MarkRead {
			s.markRead(s.active)
		}
		s.publish(Update{Kind: UpdateMessages, Thread: s.active.String()})
	})
	return d, err
}

// JumpToLatest handles the "jump to latest" affordance of the open thread.
func (s *Session) JumpToLatest(ctx context.Context) (readstate.Decision, error) {
	var d readstate.Decision
	err := s.do(ctx, func() {
		if s.active.IsZero() {
			return
		}
		d = s.tracker.JumpToLatest(s.active, s.activeMessages())
		if d.MarkRead {
			s.markRead(s.active)
		}
		s.publish(Update{Kind: UpdateMessages, Thread: s.active.String()})
	})
	return d, err
}

// RefreshThreads reloads the thread list in the background.
func (s *Session) RefreshThreads(ctx context.Context) error {
	return s.do(ctx, s.fetchThreads)
}

func (s *Session) activeMessages() []model.Message {
	if tl, ok := s.messages.Lookup(s.active); ok {
		return tl.Messages()
	}
	return nil
}

// markRead persists the read boundary of key: over REST for the store and as
// a frame so the counterpart sees the receipt.
func (s *Session) markRead(key model.ThreadKey) {
	s.threads.MarkRead(key)

	// The receipt needs a message to point at. An uncached thread sends it
	// once its history has loaded and the boundary moved.
	if upTo := s.tracker.LastRead(key); upTo != "" {
		payload, err := protocol.Encode(protocol.KindMarkRead, protocol.MarkRead{
			CounterpartID: key.CounterpartID,
			ContextID:     key.ContextID,
			UpToMessageID: upTo,
		})
		if err == nil {
			s.manager.Send(connection.Frame{Kind: protocol.KindMarkRead, Thread: key, Payload: payload})
		}
	}

	s.async(func(ctx context.Context) error {
		return s.store.MarkRead(ctx, key)
	}, func(err error) {
		if err != nil {
			s.addNotice("mark_read", key, store.Reason(err))
		}
	})
}
