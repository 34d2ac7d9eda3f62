// Package journal keeps an append-only audit trail of session lifecycle
// events. The trail is never used to restore session state.
package journal

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/codeshare/internal/monitoring"
	"github.com/charlesng35/codeshare/pkg/logger"
)

// Kind names a lifecycle event.
type Kind string

const (
	KindJoin         Kind = "join"
	KindSessionStart Kind = "session_start"
	KindSessionEnd   Kind = "session_end"
	KindDisconnect   Kind = "disconnect"
)

// Event describes one lifecycle change.
type Event struct {
	Kind       Kind           `json:"kind"`
	ClientID   string         `json:"client_id"`
	Username   string         `json:"username,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Recorder persists or forwards events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// Multi fans an event out to every recorder and aggregates their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, event Event) error {
	var errs error
	for _, recorder := range m {
		if recorder == nil {
			continue
		}
		errs = multierr.Append(errs, recorder.Record(ctx, event))
	}
	return errs
}

// Combine returns a recorder for the non-nil recorders supplied.
func Combine(recorders ...Recorder) Recorder {
	active := make(Multi, 0, len(recorders))
	for _, recorder := range recorders {
		if recorder != nil {
			active = append(active, recorder)
		}
	}
	switch len(active) {
	case 0:
		return Nop{}
	case 1:
		return active[0]
	default:
		return active
	}
}

// Logged wraps a recorder so failures are logged and counted instead of
// returned. Journal errors never reach clients.
type Logged struct {
	next Recorder
	log  *zap.Logger
}

// NewLogged wraps next.
func NewLogged(next Recorder) *Logged {
	if next == nil {
		next = Nop{}
	}
	return &Logged{next: next, log: logger.WithModule("journal")}
}

func (l *Logged) Record(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := l.next.Record(ctx, event); err != nil {
		monitoring.RecordJournalEvent(string(event.Kind), "failure")
		for _, e := range multierr.Errors(err) {
			l.log.Warn("journal write failed",
				zap.String("kind", string(event.Kind)),
				zap.String("client_id", event.ClientID),
				zap.Error(e),
			)
		}
		return nil
	}
	monitoring.RecordJournalEvent(string(event.Kind), "success")
	return nil
}
