package session

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/codeshare/internal/protocol"
	"github.com/charlesng35/codeshare/pkg/logger"
)

func TestUnicastDropsUnknownTarget(t *testing.T) {
	store := NewStore()
	known := &recordingHandle{}
	store.Do(func(tx *Txn) {
		tx.RegisterClient("a", known)
		tx.Unicast("ghost", protocol.New("ghost", fixedNow, &protocol.EndSessionPayload{Reason: "x"}))
		tx.Unicast("a", protocol.New("a", fixedNow, &protocol.EndSessionPayload{Reason: "y"}))
	})

	got := known.received()
	require.Len(t, got, 1)
	require.Equal(t, &protocol.EndSessionPayload{Reason: "y"}, got[0].Payload)
}

func TestBroadcastSkipsSenderAndIsolatesFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger.Replace(zap.New(core))
	t.Cleanup(func() { logger.Replace(nil) })

	store := NewStore()
	sender := &recordingHandle{}
	broken := &recordingHandle{fail: true}
	healthy := []*recordingHandle{{}, {}, {}}

	store.Do(func(tx *Txn) {
		tx.RegisterClient("sender", sender)
		tx.RegisterClient("broken", broken)
		for i, h := range healthy {
			tx.RegisterClient(string(rune('a'+i)), h)
		}
		tx.Broadcast("sender", protocol.New("sender", fixedNow, &protocol.CursorPayload{Path: "a.txt"}))
	})

	require.Empty(t, sender.received())
	for _, h := range healthy {
		require.Len(t, h.received(), 1)
	}
	require.Equal(t, 5, store.ConnectionCount())

	entries := logs.FilterMessage("deliver message").All()
	require.Len(t, entries, 1)
	require.Equal(t, "broken", entries[0].ContextMap()["client_id"])
}

func TestBroadcastKeepsPerPeerOrder(t *testing.T) {
	store := NewStore()
	target := &recordingHandle{}
	store.Do(func(tx *Txn) { tx.RegisterClient("t", target) })

	for i := range 20 {
		store.Do(func(tx *Txn) {
			tx.Broadcast("s", protocol.Message{ClientID: "s", Timestamp: uint64(i), Payload: &protocol.CursorPayload{Path: "a"}})
		})
	}

	got := target.received()
	require.Len(t, got, 20)
	for i, msg := range got {
		require.EqualValues(t, i, msg.Timestamp)
	}
}
