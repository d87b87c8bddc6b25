// Package connection owns the session's single channel to the server: its
// lifecycle, reconnection with backoff, and the outbound queue.
package connection

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/tutorchat/internal/eventloop"
	"github.com/capitalize-ai/tutorchat/internal/model"
	"github.com/capitalize-ai/tutorchat/internal/transport"
	"github.com/capitalize-ai/tutorchat/pkg/logger"
	"github.com/capitalize-ai/tutorchat/pkg/metrics"
)

// CredentialSource supplies the credentials used to open the channel.
type CredentialSource interface {
	Credentials(ctx context.Context) (transport.Credentials, error)
}

// Config controls reconnection.
type Config struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Jitter       float64
	WriteTimeout time.Duration
}

// DefaultConfig returns base 1s, cap 30s, 10 attempts, 20% jitter.
func DefaultConfig() Config {
	return Config{
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  10,
		Jitter:       0.2,
		WriteTimeout: 10 * time.Second,
	}
}

// writeBuffer bounds how many entries are handed to a writer at once.
const writeBuffer = 32

// Manager drives the connection state machine. Every method must be called on
// the session loop; I/O runs on helper goroutines that post results back.
type Manager struct {
	cfg     Config
	sched   *eventloop.Scheduler
	dialer  transport.Dialer
	creds   CredentialSource
	queue   *Queue
	backoff *Backoff
	onFrame func([]byte)
	logger  *logger.Logger

	state     model.ConnectionState
	attempt   int
	nextRetry time.Duration
	lastErr   string
	since     time.Time

	// gen identifies the current dial or link. Callbacks carrying an older
	// generation are stale and ignored.
	gen        uint64
	cancelDial context.CancelFunc
	link       *link
	retry      *eventloop.Timer

	observers map[int]func(model.ConnectionStatus)
	nextObs   int
}

type link struct {
	conn   transport.Conn
	writes chan Entry
	cancel context.CancelFunc
}

// NewManager creates a manager in the disconnected state. onFrame receives
// every inbound frame on the loop.
func NewManager(cfg Config, sched *eventloop.Scheduler, dialer transport.Dialer, creds CredentialSource,
	queue *Queue, onFrame func([]byte), log *logger.Logger) *Manager {
	def := DefaultConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = def.MaxDelay
		if cfg.MaxDelay < cfg.BaseDelay {
			cfg.MaxDelay = cfg.BaseDelay
		}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		cfg.Jitter = def.Jitter
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if onFrame == nil {
		onFrame = func([]byte) {}
	}

	m := &Manager{
		cfg:       cfg,
		sched:     sched,
		dialer:    dialer,
		creds:     creds,
		queue:     queue,
		backoff:   NewBackoff(cfg.BaseDelay, cfg.MaxDelay, cfg.Jitter, sched.Clock()),
		onFrame:   onFrame,
		logger:    logger.OrGlobal(log).Named("connection"),
		state:     model.StateDisconnected,
		since:     sched.Now(),
		observers: make(map[int]func(model.ConnectionStatus)),
	}
	metrics.SetConnectionState(string(m.state))
	return m
}

// Status returns the current snapshot.
func (m *Manager) Status() model.ConnectionStatus {
	return model.ConnectionStatus{
		State:       m.state,
		Attempt:     m.attempt,
		NextRetryIn: m.nextRetry,
		Queued:      m.queue.Len(),
		LastError:   m.lastErr,
		Since:       m.since,
	}
}

// State returns the current connection state.
func (m *Manager) State() model.ConnectionState {
	return m.state
}

// Subscribe registers fn for every status change and returns a function that
// removes it. Observers run on the loop.
func (m *Manager) Subscribe(fn func(model.ConnectionStatus)) func() {
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	return func() { delete(m.observers, id) }
}

// Connect opens the channel. It does nothing unless disconnected.
func (m *Manager) Connect() {
	if m.state != model.StateDisconnected {
		return
	}
	m.attempt = 0
	m.backoff.Reset()
	m.transition(model.StateConnecting)
	m.dial()
}

// Disconnect closes the channel deliberately. Pending retries are cancelled
// and no reconnection follows. Queued frames stay queued.
func (m *Manager) Disconnect() {
	if m.state == model.StateDisconnected {
		return
	}
	m.teardown()
	m.attempt = 0
	m.nextRetry = 0
	m.lastErr = ""
	m.transition(model.StateDisconnected)
}

// Reconnect restarts the connection from failed, or short-circuits a pending
// retry. It does nothing while connecting or connected.
func (m *Manager) Reconnect() {
	if m.state == model.StateConnecting || m.state == model.StateConnected {
		return
	}
	m.teardown()
	m.attempt = 0
	m.nextRetry = 0
	m.backoff.Reset()
	m.transition(model.StateConnecting)
	m.dial()
}

// Send queues a frame and transmits it as soon as the channel allows. It
// returns the queue entry id, or "" when an ephemeral frame was dropped
// because the channel is down.
func (m *Manager) Send(f Frame) string {
	if f.Kind.Ephemeral() && (m.state != model.StateConnected || m.link == nil) {
		m.logger.Debug("dropping ephemeral frame while offline", zap.String("type", string(f.Kind)))
		return ""
	}
	e := m.queue.Push(f, m.sched.Now())
	m.pump()
	m.notify()
	return e.ID
}

// Close tears the channel down and releases the queue.
func (m *Manager) Close() error {
	m.Disconnect()
	m.observers = make(map[int]func(model.ConnectionStatus))
	return m.queue.Close()
}

func (m *Manager) dial() {
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	loop := m.sched.Loop()

	go func() {
		creds, err := m.creds.Credentials(ctx)
		var conn transport.Conn
		if err == nil {
			conn, err = m.dialer.Dial(ctx, creds)
		}
		posted := loop.Post(func() { m.handleDialed(gen, conn, err) })
		if !posted && conn != nil {
			conn.Close()
		}
	}()
}

func (m *Manager) handleDialed(gen uint64, conn transport.Conn, err error) {
	if gen != m.gen {
		if conn != nil {
			go conn.Close()
		}
		return
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if err != nil {
		m.handleFailure(gen, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &link{conn: conn, writes: make(chan Entry, writeBuffer), cancel: cancel}
	m.link = l
	go m.readLoop(ctx, gen, conn)
	go m.writeLoop(ctx, gen, l)

	if m.attempt > 0 {
		m.logger.Info("channel recovered", zap.Int("attempts", m.attempt))
	} else {
		m.logger.Info("channel connected")
	}
	m.attempt = 0
	m.nextRetry = 0
	m.lastErr = ""
	m.backoff.Reset()
	m.transition(model.StateConnected)
	m.pump()
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, conn transport.Conn) {
	loop := m.sched.Loop()
	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			loop.Post(func() { m.handleFailure(gen, err) })
			return
		}
		if !loop.Post(func() { m.handleFrame(gen, frame) }) {
			return
		}
	}
}

func (m *Manager) writeLoop(ctx context.Context, gen uint64, l *link) {
	loop := m.sched.Loop()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-l.writes:
			wctx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
			err := l.conn.WriteFrame(wctx, e.Payload)
			cancel()
			loop.Post(func() { m.handleWritten(gen, e, err) })
			if err != nil {
				return
			}
		}
	}
}

func (m *Manager) handleFrame(gen uint64, frame []byte) {
	if gen != m.gen {
		return
	}
	m.onFrame(frame)
}

func (m *Manager) handleWritten(gen uint64, e Entry, err error) {
	if err != nil {
		if gen == m.gen {
			m.handleFailure(gen, err)
		}
		return
	}
	// The transport accepted the frame, so it leaves the queue even if the
	// link has since been replaced.
	m.queue.Remove(e.ID)
	metrics.FramesSentTotal.WithLabelValues(string(e.Kind)).Inc()
	m.pump()
	m.notify()
}

// handleFailure reacts to a dial error or a drop on the current link.
func (m *Manager) handleFailure(gen uint64, err error) {
	if gen != m.gen {
		return
	}
	if errors.Is(err, transport.ErrClosed) && m.state == model.StateDisconnected {
		return
	}
	m.teardown()
	m.lastErr = err.Error()

	switch m.state {
	case model.StateConnected, model.StateConnecting:
		m.attempt = 1
		m.logger.Warn("channel lost", zap.Error(err))
	case model.StateReconnecting:
		if m.attempt >= m.cfg.MaxAttempts {
			m.nextRetry = 0
			m.logger.Error("reconnection attempts exhausted",
				zap.Int("attempts", m.attempt),
				zap.Error(err),
			)
			m.transition(model.StateFailed)
			return
		}
		m.attempt++
		m.logger.Debug("reconnection attempt failed", zap.Int("attempt", m.attempt-1), zap.Error(err))
	default:
		return
	}
	m.scheduleRetry()
}

func (m *Manager) scheduleRetry() {
	delay := m.backoff.Next()
	m.nextRetry = delay
	metrics.ReconnectAttemptsTotal.Inc()
	m.logger.Info("scheduling reconnect",
		zap.Int("attempt", m.attempt),
		zap.Duration("delay", delay),
	)
	m.retry = m.sched.AfterFunc(delay, func() {
		m.retry = nil
		m.dial()
	})
	m.transition(model.StateReconnecting)
}

// teardown cancels any dial, retry timer and link, invalidating their
// callbacks. In-flight entries return to pending.
func (m *Manager) teardown() {
	m.gen++
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.link != nil {
		l := m.link
		m.link = nil
		l.cancel()
		go l.conn.Close()
	}
	m.queue.Revert()
}

// pump hands pending entries to the writer in queue order.
func (m *Manager) pump() {
	if m.state != model.StateConnected || m.link == nil {
		return
	}
	for {
		it := m.queue.nextPending()
		if it == nil {
			return
		}
		select {
		case m.link.writes <- it.Entry:
			it.inFlight = true
		default:
			return
		}
	}
}

func (m *Manager) transition(state model.ConnectionState) {
	if m.state != state {
		m.state = state
		m.since = m.sched.Now()
		metrics.SetConnectionState(string(state))
	}
	m.notify()
}

func (m *Manager) notify() {
	status := m.Status()
	for _, fn := range m.observers {
		fn(status)
	}
}
