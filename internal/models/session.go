package models

import (
	"time"

	"github.com/google/uuid"
)

// Session represents an estimation session owned by a facilitator.
type Session struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	DeckType        string    `json:"deck_type"`
	TimerDuration   int       `json:"timer_duration"` // default seconds per round
	MaxParticipants int       `json:"max_participants"`
	FacilitatorID   uuid.UUID `json:"facilitator_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
