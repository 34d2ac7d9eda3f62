// Package session holds the shared editing state and the message-driven
// transitions that mutate it.
package session

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/codeshare/internal/edit"
	"github.com/charlesng35/codeshare/internal/protocol"
	"github.com/charlesng35/codeshare/pkg/logger"
)

// EditResult describes what ApplyEdit did.
type EditResult string

const (
	EditApplied     EditResult = "applied"
	EditRejected    EditResult = "rejected"
	EditUnknownFile EditResult = "unknown_file"
)

type document struct {
	content  []string
	revision uint64
	cursors  map[string]protocol.RemoteCursor
}

// DocumentSnapshot is a deep copy of one document.
type DocumentSnapshot struct {
	Path     string                  `json:"path"`
	Revision uint64                  `json:"revision"`
	Content  []string                `json:"content"`
	Cursors  []protocol.RemoteCursor `json:"cursors"`
}

// FileSummary describes a document without its content.
type FileSummary struct {
	Path     string `json:"path"`
	Revision uint64 `json:"revision"`
	Lines    int    `json:"lines"`
	Cursors  int    `json:"cursors"`
}

// Snapshot is a consistent view of the whole session.
type Snapshot struct {
	Users       []protocol.UserInfo `json:"users"`
	Files       []FileSummary       `json:"files"`
	Connections int                 `json:"connections"`
}

// Store is the process-wide session state. One mutex guards the client
// registry, the user directory and the documents together.
type Store struct {
	mu        sync.Mutex
	clients   map[string]Handle
	users     map[string]protocol.UserInfo
	files     map[string]*document
	pickColor func() string
	log       *zap.Logger
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithColorPicker overrides how user colors are chosen.
func WithColorPicker(pick func() string) StoreOption {
	return func(s *Store) {
		if pick != nil {
			s.pickColor = pick
		}
	}
}

// NewStore constructs an empty store.
func NewStore(opts ...StoreOption) *Store {
	palette := NewPalette(nil, 0)
	s := &Store{
		clients:   make(map[string]Handle),
		users:     make(map[string]protocol.UserInfo),
		files:     make(map[string]*document),
		pickColor: palette.Pick,
		log:       logger.WithModule("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Txn exposes store operations inside one critical section. It must not be
// retained after Do returns.
type Txn struct {
	s *Store
}

// Do runs fn with the store lock held.
func (s *Store) Do(fn func(tx *Txn)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Txn{s: s})
}

// RemoveClient purges id in its own critical section.
func (s *Store) RemoveClient(id string) {
	s.Do(func(tx *Txn) { tx.RemoveClient(id) })
}

// Snapshot returns users sorted by id, files sorted by path and the number
// of registered connections.
func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	s.Do(func(tx *Txn) {
		snap.Users = tx.Users()
		snap.Connections = len(s.clients)
		snap.Files = make([]FileSummary, 0, len(s.files))
		for _, path := range tx.FilePaths() {
			doc := s.files[path]
			snap.Files = append(snap.Files, FileSummary{
				Path:     path,
				Revision: doc.revision,
				Lines:    len(doc.content),
				Cursors:  len(doc.cursors),
			})
		}
	})
	return snap
}

// Document returns a copy of the document at path.
func (s *Store) Document(path string) (DocumentSnapshot, bool) {
	var (
		snap DocumentSnapshot
		ok   bool
	)
	s.Do(func(tx *Txn) { snap, ok = tx.File(path) })
	return snap, ok
}

// ConnectionCount returns the number of registered handles.
func (s *Store) ConnectionCount() int {
	var n int
	s.Do(func(*Txn) { n = len(s.clients) })
	return n
}

// RegisterClient stores the handle for id, replacing any previous one.
func (tx *Txn) RegisterClient(id string, handle Handle) {
	if handle == nil {
		return
	}
	tx.s.clients[id] = handle
}

// RegisterUser creates or replaces the user entry for id with a fresh color.
func (tx *Txn) RegisterUser(id, username string) protocol.UserInfo {
	user := protocol.UserInfo{ID: id, Username: username, Color: tx.s.pickColor()}
	tx.s.users[id] = user
	return user
}

// HasUser reports whether id has a user entry.
func (tx *Txn) HasUser(id string) bool {
	_, ok := tx.s.users[id]
	return ok
}

// User returns the user entry for id.
func (tx *Txn) User(id string) (protocol.UserInfo, bool) {
	user, ok := tx.s.users[id]
	return user, ok
}

// UpsertFile replaces the document at path. When cursor is set it becomes
// the only cursor of the new document.
func (tx *Txn) UpsertFile(path string, content []string, cursor *protocol.RemoteCursor) {
	doc := &document{
		content: append([]string{}, content...),
		cursors: make(map[string]protocol.RemoteCursor),
	}
	if cursor != nil {
		doc.cursors[cursor.ClientID] = cloneCursor(*cursor)
	}
	tx.s.files[path] = doc
}

// File returns a deep copy of the document at path with cursors sorted by
// client id.
func (tx *Txn) File(path string) (DocumentSnapshot, bool) {
	doc, ok := tx.s.files[path]
	if !ok {
		return DocumentSnapshot{}, false
	}
	cursors := make([]protocol.RemoteCursor, 0, len(doc.cursors))
	for _, cursor := range doc.cursors {
		cursors = append(cursors, cloneCursor(cursor))
	}
	sort.Slice(cursors, func(i, j int) bool { return cursors[i].ClientID < cursors[j].ClientID })
	return DocumentSnapshot{
		Path:     path,
		Revision: doc.revision,
		Content:  append([]string{}, doc.content...),
		Cursors:  cursors,
	}, true
}

// ApplyEdit runs op against the document at path. The revision is left
// untouched.
func (tx *Txn) ApplyEdit(path string, op edit.Op) EditResult {
	doc, ok := tx.s.files[path]
	if !ok {
		return EditUnknownFile
	}
	if edit.Check(len(doc.content), op) != nil {
		return EditRejected
	}
	doc.content = edit.Apply(doc.content, op)
	return EditApplied
}

// UpsertCursor stores cursor under its owner. It reports false when the
// document does not exist.
func (tx *Txn) UpsertCursor(path string, cursor protocol.RemoteCursor) bool {
	doc, ok := tx.s.files[path]
	if !ok {
		return false
	}
	doc.cursors[cursor.ClientID] = cloneCursor(cursor)
	return true
}

// RemoveClient drops the handle, the user and every cursor owned by id.
func (tx *Txn) RemoveClient(id string) {
	delete(tx.s.clients, id)
	delete(tx.s.users, id)
	for _, doc := range tx.s.files {
		delete(doc.cursors, id)
	}
}

// Users returns every user sorted by id.
func (tx *Txn) Users() []protocol.UserInfo {
	users := make([]protocol.UserInfo, 0, len(tx.s.users))
	for _, user := range tx.s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// FilePaths returns every document path in lexical order.
func (tx *Txn) FilePaths() []string {
	paths := make([]string, 0, len(tx.s.files))
	for path := range tx.s.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Size returns the user and document counts.
func (tx *Txn) Size() (users, documents int) {
	return len(tx.s.users), len(tx.s.files)
}

func cloneCursor(c protocol.RemoteCursor) protocol.RemoteCursor {
	if c.Selection != nil {
		sel := *c.Selection
		c.Selection = &sel
	}
	return c
}
