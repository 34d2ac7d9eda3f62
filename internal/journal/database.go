package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/codeshare/internal/models"
)

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// Filter narrows a journal listing.
type Filter struct {
	Kind     string
	ClientID string
	Page     int
	PerPage  int
}

func (f Filter) normalized() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = defaultPerPage
	}
	if f.PerPage > maxPerPage {
		f.PerPage = maxPerPage
	}
	f.Kind = strings.TrimSpace(f.Kind)
	f.ClientID = strings.TrimSpace(f.ClientID)
	return f
}

// DatabaseRecorder stores events as SessionEvent rows.
type DatabaseRecorder struct {
	db *gorm.DB
}

// NewDatabaseRecorder constructs a recorder on db.
func NewDatabaseRecorder(db *gorm.DB) (*DatabaseRecorder, error) {
	if db == nil {
		return nil, errors.New("journal: database handle is required")
	}
	return &DatabaseRecorder{db: db}, nil
}

// Record inserts one row.
func (r *DatabaseRecorder) Record(ctx context.Context, event Event) error {
	row := models.SessionEvent{
		Kind:       string(event.Kind),
		ClientID:   event.ClientID,
		Username:   event.Username,
		OccurredAt: event.OccurredAt.UTC(),
	}
	if len(event.Detail) > 0 {
		detail, err := json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("journal: encode detail: %w", err)
		}
		row.Detail = datatypes.JSON(detail)
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("journal: insert %s event: %w", event.Kind, err)
	}
	return nil
}

// List returns matching events, newest first, together with the total count.
func (r *DatabaseRecorder) List(ctx context.Context, filter Filter) ([]models.SessionEvent, int64, Filter, error) {
	filter = filter.normalized()

	scope := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Model(&models.SessionEvent{})
		if filter.Kind != "" {
			tx = tx.Where("kind = ?", filter.Kind)
		}
		if filter.ClientID != "" {
			tx = tx.Where("client_id = ?", filter.ClientID)
		}
		return tx
	}

	var total int64
	if err := r.db.WithContext(ctx).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, filter, fmt.Errorf("journal: count events: %w", err)
	}

	var events []models.SessionEvent
	err := r.db.WithContext(ctx).
		Scopes(scope).
		Order("occurred_at DESC").
		Order("id").
		Offset((filter.Page - 1) * filter.PerPage).
		Limit(filter.PerPage).
		Find(&events).Error
	if err != nil {
		return nil, 0, filter, fmt.Errorf("journal: list events: %w", err)
	}
	return events, total, filter, nil
}

// CleanupOlderThan deletes events that occurred before cutoff.
func (r *DatabaseRecorder) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("occurred_at < ?", cutoff.UTC()).
		Delete(&models.SessionEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("journal: cleanup events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
