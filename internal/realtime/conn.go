package realtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/codeshare/internal/monitoring"
	"github.com/charlesng35/codeshare/internal/protocol"
	"github.com/charlesng35/codeshare/internal/session"
	apperrors "github.com/charlesng35/codeshare/pkg/errors"
)

// Transport labels used for metrics and logs.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// flushTimeout bounds how long queued frames are written after a clean EOF.
const flushTimeout = 5 * time.Second

// transport abstracts the framing of one accepted connection.
type transport interface {
	// ReadFrame returns the next inbound frame. io.EOF marks a clean close.
	ReadFrame() ([]byte, error)
	// WriteFrame writes one newline-terminated frame.
	WriteFrame(frame []byte) error
	Close() error
}

// tracker keeps the open connections of a listener so shutdown can close them.
type tracker struct {
	mu     sync.Mutex
	conns  map[io.Closer]struct{}
	closed bool
	wg     sync.WaitGroup
}

// add registers c. Once closeAll has run, c is closed and false is returned.
func (t *tracker) add(c io.Closer) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		_ = c.Close()
		return false
	}
	if t.conns == nil {
		t.conns = make(map[io.Closer]struct{})
	}
	t.conns[c] = struct{}{}
	t.wg.Add(1)
	return true
}

func (t *tracker) remove(c io.Closer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.conns[c]; ok {
		delete(t.conns, c)
		t.wg.Done()
	}
}

func (t *tracker) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for c := range t.conns {
		_ = c.Close()
	}
}

func (t *tracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *tracker) wait() {
	t.wg.Wait()
}

// serveConn runs the read loop of one connection until the peer goes away,
// ends its session or ctx is cancelled. The session state of the peer is
// purged exactly once on exit.
func serveConn(ctx context.Context, dispatcher *session.Dispatcher, kind string, conn transport, base *zap.Logger) {
	log := base.With(zap.String("conn_id", uuid.NewString()), zap.String("transport", kind))
	monitoring.RecordConnection(kind, 1)
	defer monitoring.RecordConnection(kind, -1)

	out := newOutbox()
	peer := session.NewPeer(out)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := out.run(conn.WriteFrame); err != nil {
			log.Warn("write frame", zap.Error(apperrors.ErrTransport.WithInternal(err)))
			_ = conn.Close()
		}
	}()

	peerClosed := false
	defer func() {
		dispatcher.Disconnect(ctx, peer)
		if peerClosed {
			out.flush()
			waitFlushed(ctx, writerDone)
		} else {
			out.close()
		}
		_ = conn.Close()
		<-writerDone
		log.Debug("connection closed")
	}()

	log.Debug("connection opened")
	for {
		frame, err := conn.ReadFrame()
		if len(frame) > 0 && (err == nil || errors.Is(err, io.EOF)) && !handleFrame(ctx, dispatcher, peer, frame, log) {
			return
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				peerClosed = true
				log.Info("peer closed connection", clientField(peer))
			case ctx.Err() != nil:
			default:
				log.Warn("read frame", clientField(peer), zap.Error(apperrors.ErrTransport.WithInternal(err)))
			}
			return
		}
	}
}

// waitFlushed gives the writer flushTimeout to deliver replies queued before
// the peer half-closed its side.
func waitFlushed(ctx context.Context, writerDone <-chan struct{}) {
	timer := time.NewTimer(flushTimeout)
	defer timer.Stop()
	select {
	case <-writerDone:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// handleFrame decodes and dispatches one frame. It reports false when the
// connection must close.
func handleFrame(ctx context.Context, dispatcher *session.Dispatcher, peer *session.Peer, frame []byte, log *zap.Logger) bool {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return true
	}

	msg, err := protocol.Decode(frame)
	if err != nil {
		log.Warn("drop malformed message", clientField(peer), zap.Error(err))
		return true
	}

	err = dispatcher.Dispatch(ctx, peer, msg)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionEnded):
		log.Info("session ended by client", zap.String("client_id", msg.ClientID))
		return false
	case errors.Is(err, apperrors.ErrUnknownFile):
		log.Warn("unknown file", zap.String("client_id", msg.ClientID), zap.String("type", string(msg.Type())), zap.Error(err))
	case errors.Is(err, apperrors.ErrUnhandledMessage):
		log.Warn("unhandled message", zap.String("client_id", msg.ClientID), zap.String("type", string(msg.Type())))
	default:
		log.Error("dispatch message", zap.String("client_id", msg.ClientID), zap.Error(err))
	}
	return true
}

func clientField(peer *session.Peer) zap.Field {
	id, _ := peer.ClientID()
	return zap.String("client_id", id)
}
