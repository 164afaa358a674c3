package models

import (
	"time"

	"github.com/google/uuid"
)

// RoundState defines the lifecycle state of a voting round.
type RoundState string

const (
	RoundStateVoting    RoundState = "voting"
	RoundStateLocked    RoundState = "locked"
	RoundStateRevealed  RoundState = "revealed"
	RoundStateFinalized RoundState = "finalized"
)

// EndReason defines why a voting round stopped accepting votes.
type EndReason string

const (
	EndReasonTimerExpired     EndReason = "timer_expired"
	EndReasonEndedEarly       EndReason = "ended_early"
	EndReasonForceReveal      EndReason = "force_reveal"
	EndReasonAllVoted         EndReason = "all_voted"
	EndReasonNewVotingStarted EndReason = "new_voting_started"
)

// VotingRound represents one timed voting cycle for a story. At most one
// round per session has a nil EndedAt at any instant.
type VotingRound struct {
	ID                  uuid.UUID  `json:"id"`
	SessionID           uuid.UUID  `json:"session_id"`
	StoryID             uuid.UUID  `json:"story_id"`
	State               RoundState `json:"state"`
	TimerDuration       int        `json:"timer_duration"` // seconds
	StartedAt           time.Time  `json:"started_at"`
	EndedAt             *time.Time `json:"ended_at,omitempty"`
	EndedBy             *uuid.UUID `json:"ended_by,omitempty"`
	EndReason           EndReason  `json:"end_reason,omitempty"`
	RevealedAt          *time.Time `json:"revealed_at,omitempty"`
	RevealedBy          *uuid.UUID `json:"revealed_by,omitempty"`
	ConsensusPercentage *int       `json:"consensus_percentage,omitempty"`
	AverageVote         *float64   `json:"average_vote,omitempty"`
}

// Open reports whether the round is still accepting lifecycle transitions
// short of reveal.
func (r *VotingRound) Open() bool {
	return r.EndedAt == nil
}
