package service

import (
	"github.com/capitalize-ai/tutorchat/internal/protocol"
	"github.com/capitalize-ai/tutorchat/internal/reconcile"
	"github.com/capitalize-ai/tutorchat/internal/router"
)

func (s *Session) registerHandlers() {
	s.router.Handle(protocol.KindMessageCreated, s.onMessage)
	s.router.Handle(protocol.KindMessageRead, s.onRead)
	s.router.Handle(protocol.KindTyping, s.onTyping)
	s.router.Handle(protocol.KindPresence, s.onPresence)
}

func (s *Session) onMessage(r router.Routed) {
	msg := *r.Event.Message
	key := r.Thread
	fromSelf := msg.SenderID == s.self

	if !fromSelf {
		s.typing.Clear(key, msg.SenderID)
	}

	tl := s.messages.Timeline(key)
	switch tl.Apply(msg) {
	case reconcile.Appended:
		if _, reload := s.threads.Apply(msg, true); reload {
			s.fetchThreads()
		}
		if key == s.active {
			if d := s.tracker.OnMessage(key, fromSelf, tl.Messages()); d.MarkRead {
				s.markRead(key)
			}
		}
	case reconcile.Matched:
		// Counted when it was sent; only the timestamp may move.
		s.threads.Apply(msg, false)
		if confirmed, ok := tl.Get(msg.ID); ok {
			s.tracker.Rebind(key, confirmed.ClientRef, confirmed.ID)
		}
	case reconcile.Duplicate:
		return
	}

	s.publish(Update{Kind: UpdateMessages, Thread: key.String()})
	s.publish(Update{Kind: UpdateThreads})
}

func (s *Session) onRead(r router.Routed) {
	rd := r.Event.Read
	key := r.Thread

	if rd.ReaderID == s.self {
		// Read on another device.
		s.tracker.SetLastRead(key, rd.UpToMessageID)
		s.threads.MarkRead(key)
		s.publish(Update{Kind: UpdateThreads})
		return
	}

	tl, ok := s.messages.Lookup(key)
	if !ok {
		return
	}
	if tl.PromoteRead(rd.UpToMessageID) > 0 {
		s.publish(Update{Kind: UpdateMessages, Thread: key.String()})
	}
}

func (s *Session) onTyping(r router.Routed) {
	// The coordinator publishes changes itself.
	s.typing.Remote(r.Thread, r.Event.Typing.UserID, r.Event.Typing.IsActive())
}

func (s *Session) onPresence(r router.Routed) {
	p := *r.Event.Presence
	s.presence[p.UserID] = p
	s.publish(Update{Kind: UpdatePresence})
}
