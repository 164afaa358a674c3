package sessions

import "github.com/google/uuid"

// CreateSessionRequest carries the fields needed to create a session.
type CreateSessionRequest struct {
	Name            string    `json:"name"`
	DeckType        string    `json:"deckType"`
	TimerDuration   int       `json:"timerDuration"`
	MaxParticipants int       `json:"maxParticipants"`
	FacilitatorID   uuid.UUID `json:"facilitatorId"`
}

// UpdateSessionRequest carries optional field updates. Nil means unchanged.
type UpdateSessionRequest struct {
	Name            *string `json:"name,omitempty"`
	DeckType        *string `json:"deckType,omitempty"`
	TimerDuration   *int    `json:"timerDuration,omitempty"`
	MaxParticipants *int    `json:"maxParticipants,omitempty"`
}
