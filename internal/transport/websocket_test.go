package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/tutorchat/pkg/logger"
)

// mockChannelServer is a test WebSocket endpoint that hands accepted
// connections to the test.
type mockChannelServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	connChan chan *websocket.Conn
}

func newMockChannelServer(t *testing.T, token string) *mockChannelServer {
	t.Helper()
	mock := &mockChannelServer{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		connChan: make(chan *websocket.Conn, 1),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := mock.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mock.connChan <- conn
	}))
	t.Cleanup(mock.server.Close)
	return mock
}

func (m *mockChannelServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-m.connChan:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(time.Second):
		t.Fatal("server did not receive connection")
		return nil
	}
}

func TestWebSocketURL(t *testing.T) {
	cases := map[string]string{
		"http://host/ws":      "ws://host/ws",
		"https://host:443/ws": "wss://host:443/ws",
		"ws://host/ws":        "ws://host/ws",
	}
	for in, want := range cases {
		got, err := websocketURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := websocketURL("ftp://host")
	assert.Error(t, err)
}

func TestWebSocketDialer_RoundTrip(t *testing.T) {
	mock := newMockChannelServer(t, "secret")
	dialer := NewWebSocketDialer(WebSocketConfig{URL: mock.server.URL}, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := dialer.Dial(ctx, Credentials{UserID: "u1", Token: "secret"})
	require.NoError(t, err)
	defer conn.Close()

	server := mock.accept(t)

	require.NoError(t, conn.WriteFrame(ctx, []byte(`{"type":"typing_start"}`)))
	_, data, err := server.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"typing_start"}`, string(data))

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"type":"presence"}`)))
	frame, err := conn.ReadFrame(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"presence"}`, string(frame))
}

func TestWebSocketDialer_Unauthorized(t *testing.T) {
	mock := newMockChannelServer(t, "secret")
	dialer := NewWebSocketDialer(WebSocketConfig{URL: mock.server.URL}, logger.NewNop())

	_, err := dialer.Dial(context.Background(), Credentials{Token: "wrong"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestWebSocketConn_CloseUnblocksRead(t *testing.T) {
	mock := newMockChannelServer(t, "secret")
	dialer := NewWebSocketDialer(WebSocketConfig{URL: mock.server.URL}, logger.NewNop())

	conn, err := dialer.Dial(context.Background(), Credentials{Token: "secret"})
	require.NoError(t, err)
	mock.accept(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.ReadFrame(context.Background())
		errCh <- err
	}()

	require.NoError(t, conn.Close())
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("read did not unblock")
	}

	assert.ErrorIs(t, conn.WriteFrame(context.Background(), []byte("x")), ErrClosed)
}

func TestWebSocketConn_ServerDropSurfacesError(t *testing.T) {
	mock := newMockChannelServer(t, "secret")
	dialer := NewWebSocketDialer(WebSocketConfig{URL: mock.server.URL}, logger.NewNop())

	conn, err := dialer.Dial(context.Background(), Credentials{Token: "secret"})
	require.NoError(t, err)
	defer conn.Close()

	server := mock.accept(t)
	server.Close()

	_, err = conn.ReadFrame(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrClosed)
}
