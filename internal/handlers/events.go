package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/codeshare/internal/journal"
	"github.com/charlesng35/codeshare/internal/models"
	apperrors "github.com/charlesng35/codeshare/pkg/errors"
	"github.com/charlesng35/codeshare/pkg/response"
	"github.com/charlesng35/codeshare/pkg/validator"
)

// EventLister pages through recorded journal events.
type EventLister interface {
	List(ctx context.Context, filter journal.Filter) ([]models.SessionEvent, int64, journal.Filter, error)
}

// EventsHandler serves the session journal.
type EventsHandler struct {
	events EventLister
}

// NewEventsHandler constructs an events handler.
func NewEventsHandler(events EventLister) (*EventsHandler, error) {
	if events == nil {
		return nil, fmt.Errorf("events handler: lister is required")
	}
	return &EventsHandler{events: events}, nil
}

type eventQuery struct {
	Kind     string `form:"kind" json:"kind" validate:"omitempty,oneof=join session_start session_end disconnect"`
	ClientID string `form:"client_id" json:"client_id"`
	Page     int    `form:"page" json:"page" validate:"min=0"`
	PerPage  int    `form:"per_page" json:"per_page" validate:"min=0,max=200"`
}

// List returns journal events, newest first.
func (h *EventsHandler) List(c *gin.Context) {
	var query eventQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid query parameters"))
		return
	}
	if err := validator.ValidateStruct(query); err != nil {
		response.Error(c, err)
		return
	}

	events, total, filter, err := h.events.List(c.Request.Context(), journal.Filter{
		Kind:     query.Kind,
		ClientID: query.ClientID,
		Page:     query.Page,
		PerPage:  query.PerPage,
	})
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, events, response.NewMeta(filter.Page, filter.PerPage, total))
}
