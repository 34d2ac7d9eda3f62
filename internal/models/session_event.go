package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SessionEvent is one journal entry describing a session lifecycle change.
type SessionEvent struct {
	BaseModel
	Kind       string         `gorm:"not null;index" json:"kind"`
	ClientID   string         `gorm:"index" json:"client_id"`
	Username   string         `json:"username"`
	Detail     datatypes.JSON `json:"detail,omitempty"`
	OccurredAt time.Time      `gorm:"not null;index" json:"occurred_at"`
}

// BeforeCreate assigns the id and stamps events recorded without a time.
func (e *SessionEvent) BeforeCreate(tx *gorm.DB) error {
	if err := e.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return nil
}
