package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/codeshare/internal/journal"
	"github.com/charlesng35/codeshare/internal/monitoring"
	"github.com/charlesng35/codeshare/internal/protocol"
	apperrors "github.com/charlesng35/codeshare/pkg/errors"
	"github.com/charlesng35/codeshare/pkg/logger"
)

// ErrSessionEnded tells the connection handler to close after END_SESSION.
var ErrSessionEnded = errors.New("session: ended by client")

// Dispatcher executes protocol messages against a Store.
type Dispatcher struct {
	store   *Store
	journal journal.Recorder
	now     func() time.Time
	log     *zap.Logger
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithJournal records lifecycle events after each transition.
func WithJournal(recorder journal.Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		if recorder != nil {
			d.journal = recorder
		}
	}
}

// WithNow overrides the server clock.
func WithNow(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher constructs a dispatcher on store.
func NewDispatcher(store *Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		journal: journal.Nop{},
		now:     time.Now,
		log:     logger.WithModule("session"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Store returns the underlying store.
func (d *Dispatcher) Store() *Store {
	return d.store
}

// Dispatch runs the transition for msg sent over peer. Returned errors
// classify what happened for logging: ErrUnknownFile, ErrUnhandledMessage or
// ErrSessionEnded. None of them are reported to the client.
func (d *Dispatcher) Dispatch(ctx context.Context, peer *Peer, msg protocol.Message) error {
	peer.observe(msg.ClientID)

	var (
		err    error
		events []journal.Event
	)
	start := time.Now()
	d.store.Do(func(tx *Txn) {
		events, err = d.apply(tx, peer, msg)
		monitoring.SetSessionSize(tx.Size())
	})
	monitoring.ObserveDispatch(time.Since(start))
	monitoring.RecordMessage(string(msg.Type()), resultLabel(err))

	for _, event := range events {
		d.record(ctx, event)
	}
	return err
}

// Disconnect purges the peer's state once its connection is gone. Peers that
// never sent a decodable message or already ended their session are skipped.
func (d *Dispatcher) Disconnect(ctx context.Context, peer *Peer) {
	id, ok := peer.cleanupID()
	if !ok {
		return
	}
	peer.end()

	var username string
	d.store.Do(func(tx *Txn) {
		if user, found := tx.User(id); found {
			username = user.Username
		}
		tx.RemoveClient(id)
		monitoring.SetSessionSize(tx.Size())
	})
	d.record(ctx, journal.Event{
		Kind:       journal.KindDisconnect,
		ClientID:   id,
		Username:   username,
		OccurredAt: d.now().UTC(),
	})
}

// record runs after the lock is released. Disconnects during shutdown still
// reach the journal, so cancellation of ctx is not propagated.
func (d *Dispatcher) record(ctx context.Context, event journal.Event) {
	if err := d.journal.Record(context.WithoutCancel(ctx), event); err != nil {
		d.log.Warn("record journal event", zap.String("kind", string(event.Kind)), zap.Error(err))
	}
}

func (d *Dispatcher) apply(tx *Txn, peer *Peer, msg protocol.Message) ([]journal.Event, error) {
	switch payload := msg.Payload.(type) {
	case *protocol.JoinPayload:
		return d.join(tx, peer, msg.ClientID, payload), nil
	case *protocol.StartSessionPayload:
		return d.startSession(tx, peer, msg.ClientID, payload), nil
	case *protocol.EndSessionPayload:
		return d.endSession(tx, peer, msg.ClientID, payload), ErrSessionEnded
	case *protocol.SyncPayload:
		return nil, d.sync(tx, msg.ClientID, payload)
	case *protocol.EditPayload:
		return nil, d.edit(tx, msg, payload)
	case *protocol.CursorPayload:
		return nil, d.cursor(tx, msg, payload)
	default:
		return nil, apperrors.ErrUnhandledMessage.WithInternal(fmt.Errorf("%s from %s", msg.Type(), msg.ClientID))
	}
}

func (d *Dispatcher) join(tx *Txn, peer *Peer, id string, payload *protocol.JoinPayload) []journal.Event {
	user := tx.RegisterUser(id, payload.Username)
	tx.RegisterClient(id, peer.claim())

	now := d.now()
	tx.Unicast(id, protocol.New(id, now, &protocol.JoinGoodPayload{
		SessionActive:  true,
		ActiveUsers:    tx.Users(),
		AvailableFiles: tx.FilePaths(),
	}))
	tx.Broadcast(id, protocol.New(protocol.ServerID, now, &protocol.UserJoinedPayload{User: user}))

	return []journal.Event{{
		Kind:       journal.KindJoin,
		ClientID:   id,
		Username:   user.Username,
		Detail:     map[string]any{"client_version": payload.ClientVersion, "color": user.Color},
		OccurredAt: now.UTC(),
	}}
}

func (d *Dispatcher) startSession(tx *Txn, peer *Peer, id string, payload *protocol.StartSessionPayload) []journal.Event {
	if !tx.HasUser(id) {
		tx.RegisterUser(id, id)
	}
	tx.RegisterClient(id, peer.claim())

	for _, file := range payload.Files {
		var cursor *protocol.RemoteCursor
		if file.MyCursor != nil {
			cursor = &protocol.RemoteCursor{
				ClientID:  id,
				Pos:       file.MyCursor.Pos,
				Selection: file.MyCursor.Selection,
			}
		}
		tx.UpsertFile(file.Path, file.Content, cursor)
	}

	return []journal.Event{{
		Kind:       journal.KindSessionStart,
		ClientID:   id,
		Username:   id,
		Detail:     map[string]any{"project_name": payload.ProjectName, "files": len(payload.Files)},
		OccurredAt: d.now().UTC(),
	}}
}

func (d *Dispatcher) endSession(tx *Txn, peer *Peer, id string, payload *protocol.EndSessionPayload) []journal.Event {
	var username string
	if user, ok := tx.User(id); ok {
		username = user.Username
	}
	tx.RemoveClient(id)
	peer.end()

	return []journal.Event{{
		Kind:       journal.KindSessionEnd,
		ClientID:   id,
		Username:   username,
		Detail:     map[string]any{"reason": payload.Reason},
		OccurredAt: d.now().UTC(),
	}}
}

func (d *Dispatcher) sync(tx *Txn, id string, payload *protocol.SyncPayload) error {
	doc, ok := tx.File(payload.Path)
	if !ok {
		return apperrors.ErrUnknownFile.WithInternal(fmt.Errorf("sync %q", payload.Path))
	}
	tx.Unicast(id, protocol.New(id, d.now(), protocol.NewSyncReply(doc.Path, doc.Revision, doc.Content, doc.Cursors)))
	return nil
}

func (d *Dispatcher) edit(tx *Txn, msg protocol.Message, payload *protocol.EditPayload) error {
	result := tx.ApplyEdit(payload.Path, payload.Op)
	monitoring.RecordEdit(string(result))
	tx.Broadcast(msg.ClientID, msg)

	switch result {
	case EditUnknownFile:
		return apperrors.ErrUnknownFile.WithInternal(fmt.Errorf("edit %q", payload.Path))
	case EditRejected:
		d.log.Debug("edit out of range",
			zap.String("client_id", msg.ClientID),
			zap.String("path", payload.Path),
		)
	}
	return nil
}

func (d *Dispatcher) cursor(tx *Txn, msg protocol.Message, payload *protocol.CursorPayload) error {
	stored := tx.UpsertCursor(payload.Path, protocol.RemoteCursor{
		ClientID:  msg.ClientID,
		Pos:       payload.Pos,
		Selection: payload.Selection,
	})
	tx.Broadcast(msg.ClientID, msg)

	if !stored {
		return apperrors.ErrUnknownFile.WithInternal(fmt.Errorf("cursor %q", payload.Path))
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrSessionEnded):
		return "ok"
	case errors.Is(err, apperrors.ErrUnknownFile):
		return "unknown_file"
	case errors.Is(err, apperrors.ErrUnhandledMessage):
		return "unhandled"
	default:
		return "error"
	}
}
