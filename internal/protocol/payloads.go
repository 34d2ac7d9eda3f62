package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/charlesng35/codeshare/internal/edit"
)

// Type selects the payload shape carried by a message.
type Type string

const (
	TypeJoin         Type = "JOIN"
	TypeJoinGood     Type = "JOIN_GOOD"
	TypeUserJoined   Type = "USER_JOINED"
	TypeUserLeft     Type = "USER_LEFT"
	TypeStartSession Type = "START_SESSION"
	TypeEndSession   Type = "END_SESSION"
	TypeSync         Type = "SYNC"
	TypeEdit         Type = "EDIT"
	TypeCursor       Type = "CURSOR"
)

// Types lists every message kind in protocol order.
var Types = []Type{
	TypeJoin, TypeJoinGood, TypeUserJoined, TypeUserLeft,
	TypeStartSession, TypeEndSession, TypeSync, TypeEdit, TypeCursor,
}

// Payload is implemented by every message body.
type Payload interface {
	Type() Type
}

// Point is a [row, col] tuple as used by cursor messages.
type Point [2]int

// Row returns the zero-based line index.
func (p Point) Row() int { return p[0] }

// Col returns the byte offset within the row.
func (p Point) Col() int { return p[1] }

// UnmarshalJSON requires exactly two elements.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("position must have 2 elements, got %d", len(raw))
	}
	p[0], p[1] = raw[0], raw[1]
	return nil
}

// Selection is a highlighted range between two cursor points.
type Selection struct {
	Start Point `json:"start" validate:"dive,min=0"`
	End   Point `json:"end" validate:"dive,min=0"`
}

// LocalCursor is a client's own cursor.
type LocalCursor struct {
	Pos       Point      `json:"pos" validate:"dive,min=0"`
	Selection *Selection `json:"selection,omitempty"`
}

// RemoteCursor is a cursor attributed to a client.
type RemoteCursor struct {
	ClientID  string     `json:"client_id"`
	Pos       Point      `json:"pos" validate:"dive,min=0"`
	Selection *Selection `json:"selection,omitempty"`
}

// UserInfo describes a participant of the session.
type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Color    string `json:"color"`
}

// FileState declares one shared file when a host starts a session.
type FileState struct {
	Path        string       `json:"path"`
	Content     []string     `json:"content"`
	IsWriteable bool         `json:"is_writeable"`
	MyCursor    *LocalCursor `json:"my_cursor,omitempty"`
}

type JoinPayload struct {
	Username      string `json:"username"`
	ClientVersion string `json:"client_version"`
}

type JoinGoodPayload struct {
	SessionActive  bool       `json:"session_active"`
	ActiveUsers    []UserInfo `json:"active_users"`
	AvailableFiles []string   `json:"available_files"`
}

type UserJoinedPayload struct {
	User UserInfo `json:"user"`
}

// UserLeftPayload is part of the protocol but the server never emits it.
type UserLeftPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Reason   string `json:"reason,omitempty"`
}

type StartSessionPayload struct {
	ProjectName string      `json:"project_name"`
	Files       []FileState `json:"files" validate:"dive"`
}

type EndSessionPayload struct {
	Reason string `json:"reason"`
}

// SyncPayload doubles as request (path only) and reply. Reply fields are
// pointers so that absent values are omitted while empty ones are kept.
type SyncPayload struct {
	Path        string          `json:"path"`
	Revision    *uint64         `json:"revision,omitempty"`
	Content     *[]string       `json:"content,omitempty"`
	IsWriteable *bool           `json:"is_writeable,omitempty"`
	Cursors     *[]RemoteCursor `json:"cursors,omitempty"`
}

// NewSyncReply builds a fully populated SYNC reply.
func NewSyncReply(path string, revision uint64, content []string, cursors []RemoteCursor) *SyncPayload {
	if content == nil {
		content = []string{}
	}
	if cursors == nil {
		cursors = []RemoteCursor{}
	}
	writeable := true
	return &SyncPayload{
		Path:        path,
		Revision:    &revision,
		Content:     &content,
		IsWriteable: &writeable,
		Cursors:     &cursors,
	}
}

type EditPayload struct {
	Path     string  `json:"path"`
	Revision uint64  `json:"revision"`
	Op       edit.Op `json:"op"`
}

type CursorPayload struct {
	Path      string     `json:"path"`
	Pos       Point      `json:"pos" validate:"dive,min=0"`
	Selection *Selection `json:"selection,omitempty"`
}

func (*JoinPayload) Type() Type         { return TypeJoin }
func (*JoinGoodPayload) Type() Type     { return TypeJoinGood }
func (*UserJoinedPayload) Type() Type   { return TypeUserJoined }
func (*UserLeftPayload) Type() Type     { return TypeUserLeft }
func (*StartSessionPayload) Type() Type { return TypeStartSession }
func (*EndSessionPayload) Type() Type   { return TypeEndSession }
func (*SyncPayload) Type() Type         { return TypeSync }
func (*EditPayload) Type() Type         { return TypeEdit }
func (*CursorPayload) Type() Type       { return TypeCursor }

func newPayload(t Type) (Payload, bool) {
	switch t {
	case TypeJoin:
		return &JoinPayload{}, true
	case TypeJoinGood:
		return &JoinGoodPayload{}, true
	case TypeUserJoined:
		return &UserJoinedPayload{}, true
	case TypeUserLeft:
		return &UserLeftPayload{}, true
	case TypeStartSession:
		return &StartSessionPayload{}, true
	case TypeEndSession:
		return &EndSessionPayload{}, true
	case TypeSync:
		return &SyncPayload{}, true
	case TypeEdit:
		return &EditPayload{}, true
	case TypeCursor:
		return &CursorPayload{}, true
	default:
		return nil, false
	}
}
