package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/codeshare/internal/session"
	apperrors "github.com/charlesng35/codeshare/pkg/errors"
	"github.com/charlesng35/codeshare/pkg/response"
)

// SessionReader is the read-only view of the session the admin API needs.
type SessionReader interface {
	Snapshot() session.Snapshot
	Document(path string) (session.DocumentSnapshot, bool)
}

// SessionHandler exposes the live session state.
type SessionHandler struct {
	store SessionReader
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(store SessionReader) (*SessionHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("session handler: store is required")
	}
	return &SessionHandler{store: store}, nil
}

// Get returns the users, document summaries and connection count.
func (h *SessionHandler) Get(c *gin.Context) {
	response.Success(c, http.StatusOK, h.store.Snapshot())
}

// File returns the content and cursors of one document.
func (h *SessionHandler) File(c *gin.Context) {
	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		response.Error(c, apperrors.NewBadRequest("path query parameter is required"))
		return
	}

	doc, ok := h.store.Document(path)
	if !ok {
		response.Error(c, apperrors.ErrNotFound.WithInternal(fmt.Errorf("document %q", path)))
		return
	}
	response.Success(c, http.StatusOK, doc)
}
