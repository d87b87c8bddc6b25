// Package threads keeps the conversation list ordered by recency and patched
// in place as messages arrive.
package threads

import (
	"slices"
	"strings"

	"github.com/capitalize-ai/tutorchat/internal/model"
)

// PreviewLength is the number of runes kept for the last message preview.
const PreviewLength = 80

// List is the reconciled thread list. It is not safe for concurrent use.
type List struct {
	self    string
	active  model.ThreadKey
	threads map[model.ThreadKey]*model.Thread
	loaded  bool
}

// New creates an empty list for the current user.
func New(self string) *List {
	return &List{self: self, threads: make(map[model.ThreadKey]*model.Thread)}
}

// Replace installs a full list from the store. The open thread stays read.
func (l *List) Replace(threads []model.Thread) {
	l.threads = make(map[model.ThreadKey]*model.Thread, len(threads))
	for _, t := range threads {
		t := t
		if t.UnreadCount < 0 || t.Key == l.active {
			t.UnreadCount = 0
		}
		l.threads[t.Key] = &t
	}
	l.loaded = true
}

// Loaded reports whether a full list was installed.
func (l *List) Loaded() bool {
	return l.loaded
}

// Apply patches the thread a message belongs to. isNew is false for messages
// already counted, such as the confirmation of an optimistic send. It returns
// the thread key and whether the list must be reloaded because the thread is
// unknown.
func (l *List) Apply(msg model.Message, isNew bool) (model.ThreadKey, bool) {
	key := msg.Thread(l.self)
	t, ok := l.threads[key]
	if !ok {
		return key, true
	}

	if !msg.CreatedAt.Before(t.LastMessageAt) {
		t.LastMessagePreview = msg.Preview(PreviewLength)
		t.LastMessageAt = msg.CreatedAt
		t.LastSenderID = msg.SenderID
	}
	if isNew {
		t.MessageCount++
		if msg.SenderID != l.self && key != l.active {
			t.UnreadCount++
		}
	}
	return key, false
}

// SetActive marks key as the open thread and clears its unread count.
func (l *List) SetActive(key model.ThreadKey) {
	l.active = key
	l.MarkRead(key)
}

// MarkRead sets the unread count of key to zero.
func (l *List) MarkRead(key model.ThreadKey) {
	if t, ok := l.threads[key]; ok {
		t.UnreadCount = 0
	}
}

// Get returns the thread for key.
func (l *List) Get(key model.ThreadKey) (model.Thread, bool) {
	t, ok := l.threads[key]
	if !ok {
		return model.Thread{}, false
	}
	return *t, true
}

// Threads returns the list recency first. Ties put unread threads first, then
// order by key so the result is stable.
func (l *List) Threads() []model.Thread {
	out := make([]model.Thread, 0, len(l.threads))
	for _, t := range l.threads {
		out = append(out, *t)
	}
	slices.SortFunc(out, func(a, b model.Thread) int {
		if c := b.LastMessageAt.Compare(a.LastMessageAt); c != 0 {
			return c
		}
		if au, bu := a.UnreadCount > 0, b.UnreadCount > 0; au != bu {
			if au {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Key.String(), b.Key.String())
	})
	return out
}

// TotalUnread sums unread counts across threads.
func (l *List) TotalUnread() int {
	total := 0
	for _, t := range l.threads {
		total += t.UnreadCount
	}
	return total
}
