package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/codeshare/internal/protocol"
	"github.com/charlesng35/codeshare/internal/session"
)

func startGateway(t *testing.T) (*Gateway, string, *session.Store) {
	t.Helper()
	dispatcher := newDispatcher()
	gateway := NewGateway(dispatcher)
	srv := httptest.NewServer(gateway)
	t.Cleanup(func() {
		gateway.Close()
		srv.Close()
	})
	return gateway, "ws" + strings.TrimPrefix(srv.URL, "http"), dispatcher.Store()
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, id string, payload protocol.Payload) {
	t.Helper()
	frame, err := protocol.Marshal(protocol.New(id, time.Now(), payload))
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func expectWS(t *testing.T, conn *websocket.Conn, kind protocol.Type) protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	require.NotContains(t, string(data), "\n")
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	require.Equal(t, kind, msg.Type())
	return msg
}

func TestGatewayCarriesProtocol(t *testing.T) {
	gateway, url, store := startGateway(t)

	host := dialWS(t, url)
	sendWS(t, host, "host", &protocol.StartSessionPayload{Files: []protocol.FileState{{Path: "a.txt", Content: []string{"hi"}}}})
	require.Eventually(t, func() bool {
		_, ok := store.Document("a.txt")
		return ok
	}, waitFor, 10*time.Millisecond)

	guest := dialWS(t, url)
	require.NoError(t, guest.WriteMessage(websocket.TextMessage, []byte("garbage")))
	sendWS(t, guest, "guest", &protocol.JoinPayload{Username: "bob"})

	good := expectWS(t, guest, protocol.TypeJoinGood).Payload.(*protocol.JoinGoodPayload)
	require.Equal(t, []string{"a.txt"}, good.AvailableFiles)
	expectWS(t, host, protocol.TypeUserJoined)

	sendWS(t, host, "host", &protocol.CursorPayload{Path: "a.txt", Pos: protocol.Point{0, 1}})
	cursor := expectWS(t, guest, protocol.TypeCursor)
	require.Equal(t, "host", cursor.ClientID)

	require.Equal(t, 2, gateway.ActiveConnections())
	require.Equal(t, 2, store.ConnectionCount())

	require.NoError(t, guest.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return store.ConnectionCount() == 1 }, waitFor, 10*time.Millisecond)
}

func TestGatewayCloseDisconnectsClients(t *testing.T) {
	gateway, url, store := startGateway(t)

	c := dialWS(t, url)
	sendWS(t, c, "c", &protocol.JoinPayload{Username: "carol"})
	expectWS(t, c, protocol.TypeJoinGood)
	require.True(t, gateway.Serving())

	gateway.Close()
	require.False(t, gateway.Serving())
	require.Equal(t, 0, store.ConnectionCount())
	require.Equal(t, 0, gateway.ActiveConnections())

	require.NoError(t, c.SetReadDeadline(time.Now().Add(waitFor)))
	_, _, err := c.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}

func TestCheckOrigin(t *testing.T) {
	gateway := NewGateway(newDispatcher())
	t.Cleanup(gateway.Close)

	cases := map[string]bool{
		"":                         true,
		"http://example.com":       true,
		"http://localhost:5173":    true,
		"http://127.0.0.1:3000":    true,
		"https://evil.example.org": false,
	}
	for origin, allowed := range cases {
		req := httptest.NewRequest(http.MethodGet, "http://example.com:8081/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		require.Equal(t, allowed, gateway.upgrader.CheckOrigin(req), origin)
	}
}
