package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/codeshare/internal/edit"
	"github.com/charlesng35/codeshare/internal/journal"
	"github.com/charlesng35/codeshare/internal/protocol"
	apperrors "github.com/charlesng35/codeshare/pkg/errors"
)

type memoryJournal struct {
	mu     sync.Mutex
	events []journal.Event
}

func (m *memoryJournal) Record(_ context.Context, event journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memoryJournal) kinds() []journal.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]journal.Kind, 0, len(m.events))
	for _, event := range m.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func TestJoinRepliesToSenderAndNotifiesOthers(t *testing.T) {
	d := newTestDispatcher()
	a, b, c := newClient("a"), newClient("b"), newClient("c")

	a.mustSend(t, d, &protocol.StartSessionPayload{ProjectName: "demo", Files: []protocol.FileState{{Path: "a.txt", Content: []string{"hello"}}}})
	b.mustSend(t, d, &protocol.JoinPayload{Username: "bob", ClientVersion: "1"})
	a.handle.reset()
	b.handle.reset()

	c.mustSend(t, d, &protocol.JoinPayload{Username: "carol", ClientVersion: "1"})

	own := c.handle.received()
	require.Len(t, own, 1)
	require.Equal(t, protocol.TypeJoinGood, own[0].Type())
	require.Equal(t, "c", own[0].ClientID)
	good := own[0].Payload.(*protocol.JoinGoodPayload)
	require.True(t, good.SessionActive)
	require.Equal(t, []string{"a.txt"}, good.AvailableFiles)
	require.Len(t, good.ActiveUsers, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{good.ActiveUsers[0].ID, good.ActiveUsers[1].ID, good.ActiveUsers[2].ID})
	require.Equal(t, "a", good.ActiveUsers[0].Username)

	for _, other := range []*client{a, b} {
		got := other.handle.received()
		require.Len(t, got, 1, other.id)
		require.Equal(t, protocol.TypeUserJoined, got[0].Type())
		require.Equal(t, protocol.ServerID, got[0].ClientID)
		require.Equal(t, protocol.UserInfo{ID: "c", Username: "carol", Color: "#4363D8"}, got[0].Payload.(*protocol.UserJoinedPayload).User)
		require.Equal(t, own[0].Timestamp, got[0].Timestamp)
	}
	require.Equal(t, protocol.Timestamp(fixedNow), own[0].Timestamp)
}

func TestStartSessionIsSilent(t *testing.T) {
	d := newTestDispatcher()
	a, b := newClient("a"), newClient("b")
	b.mustSend(t, d, &protocol.JoinPayload{Username: "bob"})
	b.handle.reset()

	a.mustSend(t, d, &protocol.StartSessionPayload{ProjectName: "demo", Files: []protocol.FileState{
		{Path: "a.txt", Content: []string{"hello"}, MyCursor: &protocol.LocalCursor{Pos: protocol.Point{0, 5}}},
		{Path: "b.txt", Content: []string{}},
	}})

	require.Empty(t, a.handle.received())
	require.Empty(t, b.handle.received())

	snap := d.Store().Snapshot()
	require.Equal(t, []protocol.UserInfo{
		{ID: "a", Username: "a", Color: "#4363D8"},
		{ID: "b", Username: "bob", Color: "#4363D8"},
	}, snap.Users)
	require.Equal(t, 2, snap.Connections)

	doc, ok := d.Store().Document("a.txt")
	require.True(t, ok)
	require.Equal(t, []protocol.RemoteCursor{{ClientID: "a", Pos: protocol.Point{0, 5}}}, doc.Cursors)
}

func TestStartSessionKeepsExistingUser(t *testing.T) {
	d := newTestDispatcher()
	a := newClient("a")
	a.mustSend(t, d, &protocol.JoinPayload{Username: "alice"})
	a.mustSend(t, d, &protocol.StartSessionPayload{ProjectName: "demo"})

	require.Equal(t, "alice", d.Store().Snapshot().Users[0].Username)
}

func TestEndSessionPurgesSenderWithoutNotice(t *testing.T) {
	d := newTestDispatcher()
	a, b := newClient("a"), newClient("b")
	a.mustSend(t, d, &protocol.StartSessionPayload{Files: []protocol.FileState{
		{Path: "one.txt", Content: []string{"1"}, MyCursor: &protocol.LocalCursor{}},
		{Path: "two.txt", Content: []string{"2"}, MyCursor: &protocol.LocalCursor{}},
	}})
	b.mustSend(t, d, &protocol.JoinPayload{Username: "bob"})
	b.handle.reset()

	err := a.send(t, d, &protocol.EndSessionPayload{Reason: "done"})
	require.ErrorIs(t, err, ErrSessionEnded)
	require.Empty(t, b.handle.received())

	snap := d.Store().Snapshot()
	require.Len(t, snap.Users, 1)
	require.Equal(t, "b", snap.Users[0].ID)
	require.Equal(t, 1, snap.Connections)

	for _, path := range []string{"one.txt", "two.txt"} {
		b.handle.reset()
		b.mustSend(t, d, &protocol.SyncPayload{Path: path})
		got := b.handle.received()
		require.Len(t, got, 1)
		for _, cursor := range *got[0].Payload.(*protocol.SyncPayload).Cursors {
			require.NotEqual(t, "a", cursor.ClientID)
		}
	}
}

func TestSyncUnknownPathSendsNothing(t *testing.T) {
	d := newTestDispatcher()
	b := newClient("b")
	b.mustSend(t, d, &protocol.JoinPayload{Username: "bob"})
	b.handle.reset()

	err := b.send(t, d, &protocol.SyncPayload{Path: "missing.txt"})
	require.ErrorIs(t, err, apperrors.ErrUnknownFile)
	require.Empty(t, b.handle.received())
}

func TestScenarioJoinThenSync(t *testing.T) {
	d := newTestDispatcher()
	a, b := newClient("a"), newClient("b")

	a.mustSend(t, d, &protocol.StartSessionPayload{ProjectName: "demo", Files: []protocol.FileState{{Path: "a.txt", Content: []string{"hello"}, IsWriteable: true}}})
	b.mustSend(t, d, &protocol.JoinPayload{Username: "bob", ClientVersion: "1"})
	b.handle.reset()
	b.mustSend(t, d, &protocol.SyncPayload{Path: "a.txt"})

	got := b.handle.received()
	require.Len(t, got, 1)
	require.Equal(t, protocol.TypeSync, got[0].Type())
	require.Equal(t, "b", got[0].ClientID)

	reply := got[0].Payload.(*protocol.SyncPayload)
	require.Equal(t, "a.txt", reply.Path)
	require.Equal(t, uint64(0), *reply.Revision)
	require.Equal(t, []string{"hello"}, *reply.Content)
	require.True(t, *reply.IsWriteable)
	require.Empty(t, *reply.Cursors)
	require.NotNil(t, reply.Cursors)
}

func TestScenarioEditIsRebroadcastVerbatim(t *testing.T) {
	d := newTestDispatcher()
	a, b := newClient("a"), newClient("b")

	a.mustSend(t, d, &protocol.StartSessionPayload{ProjectName: "demo", Files: []protocol.FileState{{Path: "a.txt", Content: []string{"hello"}}}})
	b.mustSend(t, d, &protocol.JoinPayload{Username: "bob"})
	b.mustSend(t, d, &protocol.SyncPayload{Path: "a.txt"})
	local := *b.handle.received()[1].Payload.(*protocol.SyncPayload).Content
	a.handle.reset()
	b.handle.reset()

	sent := insertAt("a.txt", 0, 0, "X")
	a.mustSend(t, d, sent)

	require.Empty(t, a.handle.received())
	got := b.handle.received()
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ClientID)
	require.EqualValues(t, 77, got[0].Timestamp)
	require.Equal(t, sent, got[0].Payload)

	require.Equal(t, []string{"Xhello"}, edit.Apply(local, got[0].Payload.(*protocol.EditPayload).Op))
	doc, _ := d.Store().Document("a.txt")
	require.Equal(t, []string{"Xhello"}, doc.Content)
}

func TestEditOnUnknownFileStillBroadcasts(t *testing.T) {
	d := newTestDispatcher()
	a, b := newClient("a"), newClient("b")
	b.mustSend(t, d, &protocol.JoinPayload{Username: "bob"})
	b.handle.reset()

	err := a.send(t, d, insertAt("ghost.txt", 0, 0, "X"))
	require.ErrorIs(t, err, apperrors.ErrUnknownFile)
	require.Len(t, b.handle.received(), 1)

	_, ok := d.Store().Document("ghost.txt")
	require.False(t, ok)
}

func TestOutOfRangeEditStillBroadcasts(t *testing.T) {
	d := newTestDispatcher()
	a, b := newClient("a"), newClient("b")
	a.mustSend(t, d, &protocol.StartSessionPayload{Files: []protocol.FileState{{Path: "a.txt", Content: []string{"abc"}}}})
	b.mustSend(t, d, &protocol.JoinPayload{Username: "bob"})
	b.handle.reset()

	a.mustSend(t, d, insertAt("a.txt", 9, 0, "X"))
	require.Len(t, b.handle.received(), 1)

	doc, _ := d.Store().Document("a.txt")
	require.Equal(t, []string{"abc"}, doc.Content)
}

func TestCursorUpsertsAndBroadcasts(t *testing.T) {
	d := newTestDispatcher()
	a, b := newClient("a"), newClient("b")
	a.mustSend(t, d, &protocol.StartSessionPayload{Files: []protocol.FileState{{Path: "a.txt", Content: []string{"abc"}}}})
	b.mustSend(t, d, &protocol.JoinPayload{Username: "bob"})
	a.handle.reset()

	selection := &protocol.Selection{Start: protocol.Point{0, 0}, End: protocol.Point{0, 2}}
	b.mustSend(t, d, &protocol.CursorPayload{Path: "a.txt", Pos: protocol.Point{0, 2}, Selection: selection})

	got := a.handle.received()
	require.Len(t, got, 1)
	require.Equal(t, protocol.TypeCursor, got[0].Type())
	require.Equal(t, "b", got[0].ClientID)

	doc, _ := d.Store().Document("a.txt")
	require.Equal(t, []protocol.RemoteCursor{{ClientID: "b", Pos: protocol.Point{0, 2}, Selection: selection}}, doc.Cursors)

	err := b.send(t, d, &protocol.CursorPayload{Path: "ghost.txt"})
	require.ErrorIs(t, err, apperrors.ErrUnknownFile)
	require.Len(t, a.handle.received(), 2)
}

func TestServerKindsAreUnhandled(t *testing.T) {
	d := newTestDispatcher()
	a, b := newClient("a"), newClient("b")
	b.mustSend(t, d, &protocol.JoinPayload{Username: "bob"})
	b.handle.reset()

	for _, payload := range []protocol.Payload{
		&protocol.JoinGoodPayload{},
		&protocol.UserJoinedPayload{},
		&protocol.UserLeftPayload{UserID: "x"},
	} {
		err := a.send(t, d, payload)
		require.ErrorIs(t, err, apperrors.ErrUnhandledMessage)
	}
	require.Empty(t, b.handle.received())
	require.True(t, a.peer.Registered())
}

func TestHandleIsClaimedOnce(t *testing.T) {
	d := newTestDispatcher()
	a := newClient("a")

	require.ErrorIs(t, a.send(t, d, &protocol.SyncPayload{Path: "none"}), apperrors.ErrUnknownFile)
	require.Equal(t, 0, d.Store().ConnectionCount())
	require.True(t, a.peer.Registered())

	a.mustSend(t, d, &protocol.JoinPayload{Username: "alice"})
	require.Equal(t, 1, d.Store().ConnectionCount())
	require.Nil(t, a.peer.claim())

	a.mustSend(t, d, &protocol.JoinPayload{Username: "alice again"})
	require.Equal(t, 1, d.Store().ConnectionCount())
	require.Len(t, a.handle.received(), 2)
}

func TestDisconnectRemovesClientOnce(t *testing.T) {
	events := &memoryJournal{}
	d := newTestDispatcher(WithJournal(events))
	a, b := newClient("a"), newClient("b")

	silent := NewPeer(&recordingHandle{})
	d.Disconnect(t.Context(), silent)

	a.mustSend(t, d, &protocol.StartSessionPayload{Files: []protocol.FileState{{Path: "a.txt", Content: []string{"x"}, MyCursor: &protocol.LocalCursor{}}}})
	b.mustSend(t, d, &protocol.JoinPayload{Username: "bob"})
	b.handle.reset()

	d.Disconnect(t.Context(), a.peer)
	d.Disconnect(t.Context(), a.peer)

	snap := d.Store().Snapshot()
	require.Len(t, snap.Users, 1)
	require.Equal(t, 0, snap.Files[0].Cursors)
	require.Empty(t, b.handle.received())

	require.Equal(t, []journal.Kind{journal.KindSessionStart, journal.KindJoin, journal.KindDisconnect}, events.kinds())
}

func TestDisconnectAfterEndSessionIsSkipped(t *testing.T) {
	events := &memoryJournal{}
	d := newTestDispatcher(WithJournal(events))
	a := newClient("a")

	a.mustSend(t, d, &protocol.JoinPayload{Username: "alice"})
	require.ErrorIs(t, a.send(t, d, &protocol.EndSessionPayload{Reason: "bye"}), ErrSessionEnded)
	d.Disconnect(t.Context(), a.peer)

	require.Equal(t, []journal.Kind{journal.KindJoin, journal.KindSessionEnd}, events.kinds())
	events.mu.Lock()
	require.Equal(t, "alice", events.events[1].Username)
	require.Equal(t, "bye", events.events[1].Detail["reason"])
	events.mu.Unlock()
}

// Concurrent editors must produce the same document as replaying the edits in
// the order an observer received them.
func TestConcurrentEditsMatchSequentialOracle(t *testing.T) {
	d := newTestDispatcher()
	host := newClient("host")
	observer := newClient("observer")

	initial := []string{"alpha", "beta", "gamma"}
	host.mustSend(t, d, &protocol.StartSessionPayload{Files: []protocol.FileState{{Path: "doc.txt", Content: initial}}})
	observer.mustSend(t, d, &protocol.JoinPayload{Username: "watcher"})
	observer.handle.reset()

	const writers, perWriter = 8, 40
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient(fmt.Sprintf("w%d", w))
			for i := range perWriter {
				var payload *protocol.EditPayload
				switch i % 4 {
				case 0:
					payload = insertAt("doc.txt", 0, i%5, fmt.Sprintf("w%d-%d", w, i))
				case 1:
					payload = insertAt("doc.txt", 1, 0, "first", fmt.Sprintf("w%d", w), "last")
				case 2:
					payload = &protocol.EditPayload{Path: "doc.txt", Op: edit.Op{
						Start: edit.Position{Row: 0, Col: 1},
						End:   edit.Position{Row: 1, Col: 2},
						Text:  []string{},
					}}
				default:
					payload = insertAt("doc.txt", 2+w, 3, "tail")
				}
				if err := c.send(t, d, payload); err != nil {
					t.Errorf("dispatch: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	got := observer.handle.received()
	require.Len(t, got, writers*perWriter)

	oracle := append([]string(nil), initial...)
	for _, msg := range got {
		oracle = edit.Apply(oracle, msg.Payload.(*protocol.EditPayload).Op)
	}

	doc, ok := d.Store().Document("doc.txt")
	require.True(t, ok)
	require.Equal(t, oracle, doc.Content)
}
