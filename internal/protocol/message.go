package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	apperrors "github.com/charlesng35/codeshare/pkg/errors"
	"github.com/charlesng35/codeshare/pkg/validator"
)

// ServerID is the envelope client_id of server-synthesised broadcasts.
const ServerID = "server"

// Message is one protocol envelope.
type Message struct {
	ClientID  string
	Timestamp uint64
	Payload   Payload
}

// Type returns the kind of the carried payload.
func (m Message) Type() Type {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.Type()
}

// New builds a message stamped with the given time.
func New(clientID string, at time.Time, payload Payload) Message {
	return Message{ClientID: clientID, Timestamp: Timestamp(at), Payload: payload}
}

// Timestamp converts t to milliseconds since the Unix epoch.
func Timestamp(t time.Time) uint64 {
	ms := t.UnixMilli()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}

type envelope struct {
	ClientID  *string         `json:"client_id"`
	Timestamp *uint64         `json:"timestamp"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type outboundEnvelope struct {
	ClientID  string  `json:"client_id"`
	Timestamp uint64  `json:"timestamp"`
	Type      Type    `json:"type"`
	Payload   Payload `json:"payload"`
}

// Decode parses one frame. Every payload field that is neither a pointer nor
// omitempty must be present. Every failure wraps ErrMalformedMessage.
func Decode(frame []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Message{}, malformed(err)
	}
	if env.ClientID == nil {
		return Message{}, malformed(fmt.Errorf("missing client_id"))
	}
	if env.Timestamp == nil {
		return Message{}, malformed(fmt.Errorf("missing timestamp"))
	}
	payload, ok := newPayload(env.Type)
	if !ok {
		return Message{}, malformed(fmt.Errorf("unknown message type %q", env.Type))
	}
	raw := bytes.TrimSpace(env.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Message{}, malformed(fmt.Errorf("missing payload for %s", env.Type))
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return Message{}, malformed(fmt.Errorf("%s payload: %w", env.Type, err))
	}
	if err := requireFields(raw, reflect.TypeOf(payload)); err != nil {
		return Message{}, malformed(fmt.Errorf("%s payload: %w", env.Type, err))
	}
	if err := validator.ValidateStruct(payload); err != nil {
		return Message{}, malformed(fmt.Errorf("%s payload: %w", env.Type, err))
	}

	return Message{
		ClientID:  *env.ClientID,
		Timestamp: *env.Timestamp,
		Payload:   payload,
	}, nil
}

// Marshal renders m as a single JSON object.
func Marshal(m Message) ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("protocol: message without payload")
	}
	data, err := json.Marshal(outboundEnvelope{
		ClientID:  m.ClientID,
		Timestamp: m.Timestamp,
		Type:      m.Payload.Type(),
		Payload:   m.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Payload.Type(), err)
	}
	return data, nil
}

// Encode renders m as a newline-terminated frame.
func Encode(m Message) ([]byte, error) {
	data, err := Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func malformed(err error) error {
	return apperrors.ErrMalformedMessage.WithInternal(err)
}
