package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/tutorchat/internal/model"
	"github.com/capitalize-ai/tutorchat/internal/store"
)

// fetchThreads reloads the thread list. Only the newest request's result is
// installed.
func (s *Session) fetchThreads() {
	s.threadsSeq++
	seq := s.threadsSeq

	var list []model.Thread
	s.async(func(ctx context.Context) (err error) {
		list, err = s.store.ListThreads(ctx)
		return err
	}, func(err error) {
		if seq != s.threadsSeq {
			return
		}
		if err != nil {
			s.addNotice("list_threads", model.ThreadKey{}, store.Reason(err))
			return
		}
		s.threads.Replace(list)
		s.logger.Debug("thread list loaded", zap.Int("threads", len(list)))
		s.publish(Update{Kind: UpdateThreads})
	})
}

// fetchHistory loads key's history. A result is discarded if another thread
// became active or a newer fetch started in the meantime.
func (s *Session) fetchHistory(key model.ThreadKey) {
	s.historySeq++
	seq := s.historySeq
	s.loading = true

	var msgs []model.Message
	s.async(func(ctx context.Context) (err error) {
		msgs, err = s.store.History(ctx, key)
		return err
	}, func(err error) {
		if key != s.active || seq != s.historySeq {
			s.logger.Debug("discarding stale history", zap.String("thread", key.String()))
			return
		}
		s.loading = false
		if err != nil {
			s.addNotice("history", key, store.Reason(err))
			s.publish(Update{Kind: UpdateMessages, Thread: key.String()})
			return
		}

		tl := s.messages.Timeline(key)
		tl.Merge(msgs)
		if last, ok := tl.Last(); ok {
			s.threads.Apply(last, false)
		}
		if d := s.tracker.Refresh(key, tl.Messages()); d.MarkRead {
			s.markRead(key)
		}
		s.publish(Update{Kind: UpdateMessages, Thread: key.String()})
	})
}

// fetchUser loads a counterpart's profile for threads not in the list yet.
func (s *Session) fetchUser(id string) {
	if _, ok := s.users[id]; ok {
		return
	}

	var user model.User
	s.async(func(ctx context.Context) (err error) {
		user, err = s.store.User(ctx, id)
		return err
	}, func(err error) {
		if err != nil {
			s.addNotice("get_user", model.ThreadKey{CounterpartID: id}, store.Reason(err))
			return
		}
		s.users[id] = user
		s.publish(Update{Kind: UpdateThreads})
	})
}
