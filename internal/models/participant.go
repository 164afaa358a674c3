package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantRole defines the role of a session member.
type ParticipantRole string

const (
	RoleFacilitator ParticipantRole = "facilitator"
	RoleParticipant ParticipantRole = "participant"
)

// ParticipantStatus defines where a participant is in the current round.
type ParticipantStatus string

const (
	StatusIdle   ParticipantStatus = "idle"
	StatusVoting ParticipantStatus = "voting"
	StatusVoted  ParticipantStatus = "voted"
)

// Participant represents a session member. Records are never deleted, only
// marked offline, so votes stay attributable across reconnects.
type Participant struct {
	SessionID    uuid.UUID         `json:"session_id"`
	UserID       uuid.UUID         `json:"user_id"`
	Role         ParticipantRole   `json:"role"`
	Status       ParticipantStatus `json:"status"`
	IsOnline     bool              `json:"is_online"`
	JoinedAt     time.Time         `json:"joined_at"`
	LastActiveAt time.Time         `json:"last_active_at"`
}
