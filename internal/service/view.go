package service

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/tutorchat/internal/model"
)

// UpdateKind names the part of the state that changed.
type UpdateKind string

const (
	UpdateConnection UpdateKind = "connection"
	UpdateThreads    UpdateKind = "threads"
	UpdateMessages   UpdateKind = "messages"
	UpdateTyping     UpdateKind = "typing"
	UpdatePresence   UpdateKind = "presence"
	UpdateNotices    UpdateKind = "notices"
)

// Update tells observers that some state changed. Observers re-read the
// state they show through Snapshot or Thread.
type Update struct {
	Kind   UpdateKind              `json:"kind"`
	Thread string                  `json:"thread,omitempty"`
	Status *model.ConnectionStatus `json:"status,omitempty"`
}

// Notice is a dismissible report of a failed remote call.
type Notice struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	Thread    string    `json:"thread,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ThreadView is everything the chat view shows for one thread.
type ThreadView struct {
	Key          model.ThreadKey `json:"key"`
	Thread       *model.Thread   `json:"thread,omitempty"`
	Counterpart  *model.User     `json:"counterpart,omitempty"`
	Messages     []model.Message `json:"messages"`
	Divider      int             `json:"divider"`
	Typing       []string        `json:"typing"`
	JumpToLatest bool            `json:"jump_to_latest"`
	AtBottom     bool            `json:"at_bottom"`
	Loading      bool            `json:"loading"`
}

// Snapshot is the full observable state of the session.
type Snapshot struct {
	UserID      string                    `json:"user_id"`
	Connection  model.ConnectionStatus    `json:"connection"`
	Threads     []model.Thread            `json:"threads"`
	TotalUnread int                       `json:"total_unread"`
	Active      *ThreadView               `json:"active,omitempty"`
	Notices     []Notice                  `json:"notices"`
	Presence    map[string]model.Presence `json:"presence"`
}

// Subscribe registers fn for every update and returns a function that removes
// it. fn runs on the session loop and must not block or call back into the
// session.
func (s *Session) Subscribe(fn func(Update)) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Session) publish(u Update) {
	s.obsMu.Lock()
	fns := make([]func(Update), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() {
		snap = Snapshot{
			UserID:      s.self,
			Connection:  s.manager.Status(),
			Threads:     s.threads.Threads(),
			TotalUnread: s.threads.TotalUnread(),
			Notices:     append([]Notice(nil), s.notices...),
			Presence:    maps.Clone(s.presence),
		}
		if !s.active.IsZero() {
			view := s.view(s.active)
			snap.Active = &view
		}
	})
	return snap, err
}

// Status returns the connection status.
func (s *Session) Status(ctx context.Context) (model.ConnectionStatus, error) {
	var status model.ConnectionStatus
	err := s.do(ctx, func() { status = s.manager.Status() })
	return status, err
}

// Thread returns the view of key without opening it.
func (s *Session) Thread(ctx context.Context, key model.ThreadKey) (ThreadView, error) {
	var view ThreadView
	err := s.do(ctx, func() { view = s.view(key) })
	return view, err
}

func (s *Session) view(key model.ThreadKey) ThreadView {
	view := ThreadView{
		Key:          key,
		Messages:     []model.Message{},
		Divider:      -1,
		Typing:       s.typing.Typing(key),
		JumpToLatest: s.tracker.ShowingJumpToLatest(key),
		AtBottom:     s.tracker.AtBottom(key),
		Loading:      key == s.active && s.loading,
	}
	if t, ok := s.threads.Get(key); ok {
		view.Thread = &t
	}
	if u, ok := s.users[key.CounterpartID]; ok {
		view.Counterpart = &u
	}
	if tl, ok := s.messages.Lookup(key); ok {
		view.Messages = tl.Messages()
		view.Divider = s.tracker.Divider(key, view.Messages)
	}
	return view
}

func (s *Session) addNotice(op string, key model.ThreadKey, reason string) {
	n := Notice{
		ID:        uuid.NewString(),
		Operation: op,
		Message:   reason,
		CreatedAt: s.sched.Now(),
	}
	if !key.IsZero() {
		n.Thread = key.String()
	}
	s.notices = append(s.notices, n)
	s.publish(Update{Kind: UpdateNotices, Thread: n.Thread})
}

// DismissNotice removes a notice. It reports whether the notice existed.
func (s *Session) DismissNotice(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.do(ctx, func() {
		for i, n := range s.notices {
			if n.ID == id {
				s.notices = append(s.notices[:i], s.notices[i+1:]...)
				found = true
				s.publish(Update{Kind: UpdateNotices})
				return
			}
		}
	})
	return found, err
}
