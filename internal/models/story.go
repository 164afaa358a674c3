package models

import (
	"time"

	"github.com/google/uuid"
)

// StoryStatus is derived: a story with a final score is estimated.
type StoryStatus string

const (
	StoryStatusPending   StoryStatus = "pending"
	StoryStatusEstimated StoryStatus = "estimated"
)

// Story represents a work item to be estimated within a session.
type Story struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	OrderIndex  int       `json:"order_index"`
	FinalScore  *float64  `json:"final_score,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Status derives the story's estimation status from its final score.
func (s *Story) Status() StoryStatus {
	if s.FinalScore != nil {
		return StoryStatusEstimated
	}
	return StoryStatusPending
}
