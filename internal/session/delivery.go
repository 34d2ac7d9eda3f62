package session

import (
	"go.uber.org/zap"

	"github.com/charlesng35/codeshare/internal/monitoring"
	"github.com/charlesng35/codeshare/internal/protocol"
)

const (
	modeUnicast   = "unicast"
	modeBroadcast = "broadcast"
)

// Unicast hands msg to the connection registered for target. Unknown
// targets are dropped silently. Failures are logged, never returned.
func (tx *Txn) Unicast(target string, msg protocol.Message) {
	handle, ok := tx.s.clients[target]
	if !ok {
		return
	}
	frame, err := protocol.Encode(msg)
	if err != nil {
		tx.s.log.Error("encode message", zap.String("type", string(msg.Type())), zap.Error(err))
		return
	}
	tx.send(modeUnicast, target, handle, frame)
}

// Broadcast serialises msg once and hands it to every registered connection
// except exclude. One failing peer neither stops the others nor leaves the
// registry.
func (tx *Txn) Broadcast(exclude string, msg protocol.Message) {
	if len(tx.s.clients) == 0 {
		return
	}
	frame, err := protocol.Encode(msg)
	if err != nil {
		tx.s.log.Error("encode message", zap.String("type", string(msg.Type())), zap.Error(err))
		return
	}
	for id, handle := range tx.s.clients {
		if id == exclude {
			continue
		}
		tx.send(modeBroadcast, id, handle, frame)
	}
}

func (tx *Txn) send(mode, target string, handle Handle, frame []byte) {
	if err := handle.Send(frame); err != nil {
		monitoring.RecordDeliveryFailure(mode, target, err.Error())
		tx.s.log.Warn("deliver message",
			zap.String("mode", mode),
			zap.String("client_id", target),
			zap.Error(err),
		)
		return
	}
	monitoring.RecordDelivery(mode)
}
