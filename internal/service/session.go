// Package service provides the messaging session: one live channel, the
// reconciled thread list and the views of the open thread.
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/capitalize-ai/tutorchat/internal/connection"
	"github.com/capitalize-ai/tutorchat/internal/eventloop"
	"github.com/capitalize-ai/tutorchat/internal/model"
	"github.com/capitalize-ai/tutorchat/internal/protocol"
	"github.com/capitalize-ai/tutorchat/internal/readstate"
	"github.com/capitalize-ai/tutorchat/internal/reconcile"
	"github.com/capitalize-ai/tutorchat/internal/router"
	"github.com/capitalize-ai/tutorchat/internal/store"
	"github.com/capitalize-ai/tutorchat/internal/threads"
	"github.com/capitalize-ai/tutorchat/internal/transport"
	"github.com/capitalize-ai/tutorchat/internal/typing"
	"github.com/capitalize-ai/tutorchat/internal/validation"
	"github.com/capitalize-ai/tutorchat/pkg/logger"
)

var (
	// ErrNoActiveThread is returned by actions that need an open thread.
	ErrNoActiveThread = errors.New("no thread selected")
	// ErrAlreadyStarted is returned when a session is started twice.
	ErrAlreadyStarted = errors.New("session already started")
)

// Options configures a Session.
type Options struct {
	// UserID is the signed-in user.
	UserID string

	Dialer      transport.Dialer
	Credentials connection.CredentialSource
	Store       store.Store
	// Outbox persists the outbound queue. Nil keeps it in memory.
	Outbox connection.Outbox
	// Clock drives every timer. Nil uses the real clock.
	Clock clockwork.Clock

	Connection      connection.Config
	TypingDebounce  time.Duration
	TypingExpiry    time.Duration
	MatchWindow     time.Duration
	ScrollThreshold float64
	Rules           validation.Rules

	// RequestTimeout bounds each store call. Zero means 15s.
	RequestTimeout time.Duration
}

// Session is the messaging client of one signed-in user. Its exported methods
// are safe for concurrent use; all state lives on a single event loop.
type Session struct {
	self      string
	timeout   time.Duration
	loop      *eventloop.Loop
	sched     *eventloop.Scheduler
	manager   *connection.Manager
	router    *router.Router
	messages  *reconcile.Reconciler
	tracker   *readstate.Tracker
	typing    *typing.Coordinator
	threads   *threads.List
	store     store.Store
	validator *validation.Validator
	logger    *logger.Logger

	// Loop-owned state.
	ctx         context.Context
	active      model.ThreadKey
	historySeq  uint64
	loading     bool
	threadsSeq  uint64
	dropped     bool
	presence    map[string]model.Presence
	users       map[string]model.User
	notices     []Notice
	unsubStatus func()

	started atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}

	obsMu     sync.Mutex
	observers map[int]func(Update)
	nextObs   int
}

// New wires a session. It does not connect until started.
func New(opts Options, log *logger.Logger) (*Session, error) {
	if opts.UserID == "" {
		return nil, errors.New("session: user id is required")
	}
	if opts.Dialer == nil || opts.Credentials == nil || opts.Store == nil {
		return nil, errors.New("session: dialer, credentials and store are required")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	log = logger.OrGlobal(log).WithSession(opts.UserID)

	queue, err := connection.NewQueue(opts.Outbox, log)
	if err != nil {
		return nil, err
	}

	loop := eventloop.New(log)
	s := &Session{
		self:      opts.UserID,
		timeout:   opts.RequestTimeout,
		loop:      loop,
		sched:     eventloop.NewScheduler(loop, opts.Clock),
		router:    router.New(opts.UserID, log),
		messages:  reconcile.New(opts.UserID, opts.MatchWindow),
		tracker:   readstate.NewTracker(opts.ScrollThreshold),
		threads:   threads.New(opts.UserID),
		store:     opts.Store,
		validator: validation.New(opts.Rules),
		logger:    log,
		ctx:       context.Background(),
		presence:  make(map[string]model.Presence),
		users:     make(map[string]model.User),
		done:      make(chan struct{}),
		observers: make(map[int]func(Update)),
	}
	s.manager = connection.NewManager(opts.Connection, s.sched, opts.Dialer, opts.Credentials, queue,
		s.onFrame, log)
	s.typing = typing.New(s.sched, opts.TypingDebounce, opts.TypingExpiry, s.emitTyping, func(key model.ThreadKey) {
		s.publish(Update{Kind: UpdateTyping, Thread: key.String()})
	})
	s.registerHandlers()
	return s, nil
}

// UserID returns the signed-in user.
func (s *Session) UserID() string {
	return s.self
}

// Serve runs the session until ctx is cancelled or Close is called. It
// implements suture.Service.
func (s *Session) Serve(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return suture.ErrDoNotRestart
	}
	return s.serve(ctx)
}

// Start runs the session in the background.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	go func() { _ = s.serve(ctx) }()
	return nil
}

func (s *Session) serve(parent context.Context) error {
	defer close(s.done)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	s.mu.Lock()
	if s.cancel == nil {
		s.cancel = cancel
	}
	s.mu.Unlock()

	s.ctx = ctx
	s.loop.Post(s.start)
	s.logger.Info("session started")

	err := s.loop.Run(ctx)
	// The loop has stopped; nothing else touches session state now.
	s.teardown()
	s.logger.Info("session stopped")

	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.Canceled) {
		// Closed deliberately.
		return suture.ErrDoNotRestart
	}
	return err
}

// Close disconnects and cancels every timer. It is safe to call more than
// once and on a session that never started.
func (s *Session) Close() error {
	if !s.started.Load() {
		return nil
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-s.done
	return nil
}

// Done is closed once the session stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) start() {
	s.unsubStatus = s.manager.Subscribe(s.onStatus)
	s.manager.Connect()
	s.fetchThreads()
}

func (s *Session) teardown() {
	if s.unsubStatus != nil {
		s.unsubStatus()
	}
	s.typing.Close()
	if err := s.manager.Close(); err != nil {
		s.logger.Warn("failed to close outbound queue", zap.Error(err))
	}
}

func (s *Session) onFrame(frame []byte) {
	// Dropped frames are logged and counted by the router.
	_ = s.router.Dispatch(frame)
}

func (s *Session) onStatus(status model.ConnectionStatus) {
	switch status.State {
	case model.StateReconnecting, model.StateFailed:
		s.dropped = true
	case model.StateConnected:
		if s.dropped {
			s.dropped = false
			s.logger.Info("channel recovered, refreshing state")
			s.fetchThreads()
			if !s.active.IsZero() {
				s.fetchHistory(s.active)
			}
		}
	}
	st := status
	s.publish(Update{Kind: UpdateConnection, Status: &st})
}

func (s *Session) emitTyping(key model.ThreadKey) bool {
	payload, err := protocol.Encode(protocol.KindTypingStart, protocol.TypingStart{
		RecipientID: key.CounterpartID,
		ContextID:   key.ContextID,
	})
	if err != nil {
		s.logger.Error("failed to encode typing frame", zap.Error(err))
		return false
	}
	return s.manager.Send(connection.Frame{Kind: protocol.KindTypingStart, Thread: key, Payload: payload}) != ""
}

// do runs fn on the loop and waits.
func (s *Session) do(ctx context.Context, fn func()) error {
	return s.loop.Do(ctx, fn)
}

// async runs call off the loop with a bounded context and hands the result
// back to the loop.
func (s *Session) async(call func(ctx context.Context) error, done func(err error)) {
	parent := s.ctx
	go func() {
		ctx, cancel := context.WithTimeout(parent, s.timeout)
		defer cancel()
		err := call(ctx)
		s.loop.Post(func() { done(err) })
	}()
}
