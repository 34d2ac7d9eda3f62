package realtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/codeshare/internal/session"
	"github.com/charlesng35/codeshare/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB
)

// Gateway serves the session protocol over WebSocket, one message per text
// frame. It shares the dispatcher and store with the TCP server.
type Gateway struct {
	dispatcher *session.Dispatcher
	upgrader   websocket.Upgrader
	log        *zap.Logger
	conns      tracker
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewGateway constructs a WebSocket gateway on dispatcher.
func NewGateway(dispatcher *session.Dispatcher) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		dispatcher: dispatcher,
		log:        logger.WithModule("realtime"),
		ctx:        ctx,
		cancel:     cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Allow same-origin requests and explicit localhost development.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.ctx.Err() != nil {
		http.Error(w, "gateway closed", http.StatusServiceUnavailable)
		return
	}

	socket, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newWSConn(socket)
	if !g.conns.add(conn) {
		return
	}
	defer g.conns.remove(conn)

	stopPing := conn.keepalive()
	defer stopPing()

	serveConn(g.ctx, g.dispatcher, TransportWebSocket, conn, g.log.With(zap.String("remote", r.RemoteAddr)))
}

// Close disconnects every WebSocket client and waits for their handlers.
func (g *Gateway) Close() {
	g.cancel()
	g.conns.closeAll()
	g.conns.wait()
}

// Serving reports whether the gateway still accepts upgrades.
func (g *Gateway) Serving() bool {
	return g.ctx.Err() == nil
}

// ActiveConnections returns the number of open WebSocket connections.
func (g *Gateway) ActiveConnections() int {
	return g.conns.count()
}

type wsConn struct {
	socket *websocket.Conn
	once   sync.Once
}

func newWSConn(socket *websocket.Conn) *wsConn {
	socket.SetReadLimit(maxMessageSize)
	_ = socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &wsConn{socket: socket}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		kind, payload, err := c.socket.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				return nil, io.EOF
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, io.EOF
			}
			return nil, err
		}
		if kind == websocket.TextMessage {
			return payload, nil
		}
	}
}

// WriteFrame sends frame without its newline terminator.
func (c *wsConn) WriteFrame(frame []byte) error {
	_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
	return c.socket.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(frame, []byte("\n")))
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		_ = c.socket.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.socket.Close()
	})
	return err
}

// keepalive pings the client until the returned func is called.
func (c *wsConn) keepalive() func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
