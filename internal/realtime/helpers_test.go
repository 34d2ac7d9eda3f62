package realtime

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/codeshare/internal/protocol"
	"github.com/charlesng35/codeshare/internal/session"
)

const waitFor = 2 * time.Second

func newDispatcher() *session.Dispatcher {
	return session.NewDispatcher(session.NewStore())
}

// startServer serves on a loopback listener until the test ends.
func startServer(t *testing.T, dispatcher *session.Dispatcher) (*Server, string) {
	t.Helper()
	srv := NewServer(dispatcher)
	ln, err := srv.Listen("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("server did not stop")
		}
	})
	return srv, ln.Addr().String()
}

type tcpClient struct {
	t      *testing.T
	id     string
	conn   net.Conn
	reader *bufio.Reader
}

func dialTCP(t *testing.T, addr, id string) *tcpClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &tcpClient{t: t, id: id, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *tcpClient) writeRaw(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line))
	require.NoError(c.t, err)
}

func (c *tcpClient) send(payload protocol.Payload) {
	c.t.Helper()
	frame, err := protocol.Encode(protocol.New(c.id, time.Now(), payload))
	require.NoError(c.t, err)
	_, err = c.conn.Write(frame)
	require.NoError(c.t, err)
}

func (c *tcpClient) expect(kind protocol.Type) protocol.Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(waitFor)))
	line, err := c.reader.ReadBytes('\n')
	require.NoError(c.t, err)
	msg, err := protocol.Decode(line)
	require.NoError(c.t, err)
	require.Equal(c.t, kind, msg.Type())
	return msg
}

func (c *tcpClient) expectSilence() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err := c.reader.ReadBytes('\n')
	var netErr net.Error
	require.ErrorAs(c.t, err, &netErr)
	require.True(c.t, netErr.Timeout())
}

func contextWithCancel(t *testing.T) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx, cancel
}
