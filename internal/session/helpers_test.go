package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/codeshare/internal/edit"
	"github.com/charlesng35/codeshare/internal/protocol"
)

var errBrokenPipe = errors.New("broken pipe")

// recordingHandle decodes every frame it receives.
type recordingHandle struct {
	mu       sync.Mutex
	messages []protocol.Message
	fail     bool
}

func (h *recordingHandle) Send(frame []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		return errBrokenPipe
	}
	msg, err := protocol.Decode(frame)
	if err != nil {
		return err
	}
	h.messages = append(h.messages, msg)
	return nil
}

func (h *recordingHandle) received() []protocol.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Message(nil), h.messages...)
}

func (h *recordingHandle) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestDispatcher(opts ...DispatcherOption) *Dispatcher {
	store := NewStore(WithColorPicker(func() string { return "#4363D8" }))
	opts = append([]DispatcherOption{WithNow(func() time.Time { return fixedNow })}, opts...)
	return NewDispatcher(store, opts...)
}

type client struct {
	id     string
	handle *recordingHandle
	peer   *Peer
}

func newClient(id string) *client {
	handle := &recordingHandle{}
	return &client{id: id, handle: handle, peer: NewPeer(handle)}
}

func (c *client) send(t *testing.T, d *Dispatcher, payload protocol.Payload) error {
	t.Helper()
	return d.Dispatch(t.Context(), c.peer, protocol.Message{ClientID: c.id, Timestamp: 77, Payload: payload})
}

func (c *client) mustSend(t *testing.T, d *Dispatcher, payload protocol.Payload) {
	t.Helper()
	require.NoError(t, c.send(t, d, payload))
}

func insertAt(path string, row, col int, text ...string) *protocol.EditPayload {
	pos := edit.Position{Row: row, Col: col}
	return &protocol.EditPayload{Path: path, Op: edit.Op{Start: pos, End: pos, Text: text}}
}
