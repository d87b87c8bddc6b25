package nats

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/tutorchat/internal/transport"
	"github.com/capitalize-ai/tutorchat/pkg/logger"
)

const testToken = "s3cret"

func runServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:          "127.0.0.1",
		Port:          -1,
		Authorization: testToken,
		NoLog:         true,
		NoSigs:        true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func peer(t *testing.T, ns *server.Server) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(ns.ClientURL(), nats.Token(testToken))
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "chat.user-1.in", InboundSubject("user-1"))
	assert.Equal(t, "chat.a_b_c.out", OutboundSubject("a.b*c"))
}

func TestDialer_RoundTrip(t *testing.T) {
	ns := runServer(t)
	remote := peer(t, ns)

	out, err := remote.SubscribeSync(OutboundSubject("u1"))
	require.NoError(t, err)
	require.NoError(t, remote.Flush())

	dialer := NewDialer(Config{URL: ns.ClientURL()}, logger.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := dialer.Dial(ctx, transport.Credentials{UserID: "u1", Token: testToken})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteFrame(context.Background(), []byte(`{"type":"mark_read"}`)))
	msg, err := out.NextMsg(time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"mark_read"}`, string(msg.Data))

	require.NoError(t, remote.Publish(InboundSubject("u1"), []byte(`{"type":"typing"}`)))
	require.NoError(t, remote.Flush())
	frame, err := conn.ReadFrame(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"typing"}`, string(frame))
}

func TestDialer_BadToken(t *testing.T) {
	ns := runServer(t)
	dialer := NewDialer(Config{URL: ns.ClientURL(), Timeout: time.Second}, logger.NewNop())

	_, err := dialer.Dial(context.Background(), transport.Credentials{UserID: "u1", Token: "nope"})
	assert.Error(t, err)
}

func TestDialer_RequiresUser(t *testing.T) {
	dialer := NewDialer(Config{URL: "nats://127.0.0.1:1"}, logger.NewNop())
	_, err := dialer.Dial(context.Background(), transport.Credentials{Token: testToken})
	assert.Error(t, err)
}

func TestChannel_CloseUnblocksRead(t *testing.T) {
	ns := runServer(t)
	dialer := NewDialer(Config{URL: ns.ClientURL()}, logger.NewNop())

	conn, err := dialer.Dial(context.Background(), transport.Credentials{UserID: "u1", Token: testToken})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.ReadFrame(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, conn.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, transport.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not unblock")
	}
	assert.ErrorIs(t, conn.WriteFrame(context.Background(), []byte("x")), transport.ErrClosed)
}

func TestChannel_ServerShutdownSurfacesDrop(t *testing.T) {
	ns := runServer(t)
	dialer := NewDialer(Config{URL: ns.ClientURL()}, logger.NewNop())

	conn, err := dialer.Dial(context.Background(), transport.Credentials{UserID: "u1", Token: testToken})
	require.NoError(t, err)
	defer conn.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.ReadFrame(context.Background())
		errCh <- err
	}()

	ns.Shutdown()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.NotErrorIs(t, err, transport.ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("drop was not reported")
	}
}
