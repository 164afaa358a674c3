package stories

import "github.com/google/uuid"

// CreateStoryRequest carries the fields needed to add a story.
type CreateStoryRequest struct {
	SessionID   uuid.UUID `json:"sessionId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	OrderIndex  *int      `json:"orderIndex,omitempty"`
}

// UpdateStoryRequest carries optional field updates. Nil means unchanged.
type UpdateStoryRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	OrderIndex  *int    `json:"orderIndex,omitempty"`
}
