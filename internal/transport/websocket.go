package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/tutorchat/pkg/logger"
)

// WebSocketConfig configures the WebSocket dialer.
type WebSocketConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
}

// WebSocketDialer opens channels over WebSocket.
type WebSocketDialer struct {
	cfg    WebSocketConfig
	logger *logger.Logger
}

// NewWebSocketDialer creates a dialer. Zero durations take defaults.
func NewWebSocketDialer(cfg WebSocketConfig, log *logger.Logger) *WebSocketDialer {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * cfg.PingInterval
	}
	return &WebSocketDialer{cfg: cfg, logger: logger.OrGlobal(log).Named("websocket")}
}

// Dial connects and authenticates with a bearer token.
func (d *WebSocketDialer) Dial(ctx context.Context, creds Credentials) (Conn, error) {
	wsURL, err := websocketURL(d.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("build websocket url: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  d.cfg.HandshakeTimeout,
		EnableCompression: true,
	}

	header := http.Header{}
	if creds.Token != "" {
		header.Set("Authorization", "Bearer "+creds.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &wsConn{
		conn:        conn,
		readTimeout: d.cfg.ReadTimeout,
		stop:        make(chan struct{}),
		logger:      d.logger,
	}
	_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	})

	c.wg.Add(1)
	go c.pingLoop(d.cfg.PingInterval)

	d.logger.Debug("websocket connected", zap.String("url", wsURL))
	return c, nil
}

// websocketURL rewrites http(s) URLs to ws(s).
func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

type wsConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration

	// gorilla allows one concurrent writer; pings share the lock with frames.
	writeMu sync.Mutex

	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup

	logger *logger.Logger
}

func (c *wsConn) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stop:
				return nil, ErrClosed
			default:
			}
			return nil, err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) WriteFrame(ctx context.Context, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.stop:
		return ErrClosed
	default:
	}

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsConn) pingLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				// The reader sees the broken socket and reports the drop.
				c.logger.Debug("websocket ping failed", zap.Error(err))
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)

		c.writeMu.Lock()
		if werr := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		); werr != nil {
			c.logger.Debug("websocket close message failed", zap.Error(werr))
		}
		c.writeMu.Unlock()

		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}
