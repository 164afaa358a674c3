package models

import (
	"time"

	"github.com/google/uuid"
)

// NoVote is the sentinel recorded for a participant who was present at
// reveal time but never submitted a value. It is materialized at snapshot
// time only, never stored while the round is open.
const NoVote = "No Vote"

// Vote represents one participant's submitted value for a round. Unique per
// (round, participant); resubmission replaces the value in place.
type Vote struct {
	RoundID     uuid.UUID `json:"round_id"`
	StoryID     uuid.UUID `json:"story_id"`
	UserID      uuid.UUID `json:"user_id"`
	Value       string    `json:"value"` // e.g. "3", "5", "?", NoVote
	SubmittedAt time.Time `json:"submitted_at"`
}
