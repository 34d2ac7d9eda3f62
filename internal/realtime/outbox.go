package realtime

import (
	"errors"
	"sync"
)

// ErrOutboxClosed is returned by Send once the connection is shutting down.
var ErrOutboxClosed = errors.New("realtime: outbox closed")

// outbox is the unbounded FIFO of serialised frames for one connection. Send
// is called under the session lock and only appends. The writer goroutine
// drains it onto the socket.
type outbox struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	drain  bool
	notify chan struct{}
	done   chan struct{}
}

func newOutbox() *outbox {
	return &outbox{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Send queues frame. It never blocks.
func (o *outbox) Send(frame []byte) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOutboxClosed
	}
	o.frames = append(o.frames, frame)
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return nil
}

// close stops the writer and discards frames still queued.
func (o *outbox) close() {
	o.shutdown(false)
}

// flush rejects further sends and lets the writer finish the queued frames
// before it returns.
func (o *outbox) flush() {
	o.shutdown(true)
}

func (o *outbox) shutdown(drain bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.drain = drain
	close(o.done)
}

func (o *outbox) draining() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.drain
}

func (o *outbox) take() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	frames := o.frames
	o.frames = nil
	return frames
}

// run writes queued frames in order until the outbox is shut down or write
// fails.
func (o *outbox) run(write func(frame []byte) error) error {
	for {
		select {
		case <-o.done:
			if o.draining() {
				return o.writeQueued(write)
			}
			return nil
		case <-o.notify:
		}
		if err := o.writeQueued(write); err != nil {
			return err
		}
	}
}

func (o *outbox) writeQueued(write func(frame []byte) error) error {
	for _, frame := range o.take() {
		if err := write(frame); err != nil {
			return err
		}
	}
	return nil
}
