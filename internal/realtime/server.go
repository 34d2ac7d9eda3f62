package realtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/codeshare/internal/session"
	"github.com/charlesng35/codeshare/pkg/logger"
)

// Server accepts TCP connections carrying newline-delimited JSON messages.
type Server struct {
	dispatcher *session.Dispatcher
	log        *zap.Logger
	conns      tracker

	mu       sync.Mutex
	listener net.Listener
	serving  bool
}

// NewServer constructs a TCP server on dispatcher.
func NewServer(dispatcher *session.Dispatcher) *Server {
	return &Server{
		dispatcher: dispatcher,
		log:        logger.WithModule("realtime"),
	}
}

// Listen binds address. Serve must be called to start accepting.
func (s *Server) Listen(address string) (net.Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("realtime: listen %s: %w", address, err)
	}
	return ln, nil
}

// ListenAndServe binds address and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	ln, err := s.Listen(address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or the listener
// fails. On return the listener and every accepted connection are closed
// and their handlers have finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.serving = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.serving = false
		s.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		s.conns.closeAll()
	})
	defer stop()

	s.log.Info("tcp listener started", zap.String("addr", ln.Addr().String()))
	defer s.conns.wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info("tcp listener stopped", zap.String("addr", ln.Addr().String()))
				s.conns.closeAll()
				return nil
			}
			return fmt.Errorf("realtime: accept: %w", err)
		}

		tc := newTCPConn(conn)
		if !s.conns.add(tc) {
			continue
		}
		go func() {
			defer s.conns.remove(tc)
			serveConn(ctx, s.dispatcher, TransportTCP, tc, s.log.With(zap.String("remote", conn.RemoteAddr().String())))
		}()
	}
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serving reports whether Serve is accepting connections.
func (s *Server) Serving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serving
}

// ActiveConnections returns the number of open sockets, registered or not.
func (s *Server) ActiveConnections() int {
	return s.conns.count()
}

type tcpConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newTCPConn(conn net.Conn) *tcpConn {
	return &tcpConn{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *tcpConn) ReadFrame() ([]byte, error) {
	return c.reader.ReadBytes('\n')
}

func (c *tcpConn) WriteFrame(frame []byte) error {
	_, err := c.conn.Write(frame)
	return err
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}
