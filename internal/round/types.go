package round

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcdev12/pointdeck/internal/models"
	"github.com/mcdev12/pointdeck/internal/stats"
	"github.com/mcdev12/pointdeck/internal/votetimer"
)

// SessionLookup defines what the coordinator needs from the session
// collaborator: existence checks and the facilitator identity used for
// every authorization decision.
type SessionLookup interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// VoteStore defines the durable persistence calls made once per reveal.
type VoteStore interface {
	SaveVotes(ctx context.Context, votes []models.Vote) error
	SaveRoundOutcome(ctx context.Context, round *models.VotingRound) error
}

// Broadcaster fans committed state changes out to session members. Both
// methods are fire-and-forget; delivery order follows call order within a
// session.
type Broadcaster interface {
	ToSession(sessionID uuid.UUID, event string, payload interface{})
	ToFacilitators(sessionID uuid.UUID, event string, payload interface{})
}

// OutcomePublisher emits round outcome events for downstream consumers.
// Publishing is best-effort; failures never block a reveal.
type OutcomePublisher interface {
	PublishRoundRevealed(ctx context.Context, round *models.VotingRound, result stats.Result) error
	PublishStoryFinalized(ctx context.Context, sessionID, storyID uuid.UUID, finalScore float64) error
}

// StoryFinalizer is the story-management collaborator that records a
// permanent score.
type StoryFinalizer interface {
	FinalizeScore(ctx context.Context, storyID uuid.UUID, finalScore float64) (*models.Story, error)
}

// ParticipantRecorder durably records session membership. Calls are
// best-effort; presence stays authoritative for live state.
type ParticipantRecorder interface {
	RecordJoin(ctx context.Context, p models.Participant) error
	RecordLeave(ctx context.Context, sessionID, userID uuid.UUID) error
}

// DeckValidator checks a submitted card against a session's deck.
type DeckValidator interface {
	ValidCard(deckName, value string) bool
}

// Outbound event names pushed through the Broadcaster.
const (
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventParticipantVoted  = "participant_voted"
	EventParticipantStats  = "participant_stats"
	EventVotingStarted     = "voting_started"
	EventVotingEnded       = "voting_ended"
	EventTimerUpdate       = "timer_update"
	EventTimerExpired      = "timer_expired"
	EventRevealReady       = "reveal_ready"
	EventVotesRevealed     = "votes_revealed"
	EventVotesCleared      = "votes_cleared"
	EventRevoteStarted     = "revote_started"
	EventStoryFinalized    = "story_finalized"
	EventPersistFailed     = "persistence_failed"
	EventError             = "error"
)

// ParticipantJoinedPayload announces a join to the session room.
type ParticipantJoinedPayload struct {
	UserID uuid.UUID              `json:"userId"`
	Role   models.ParticipantRole `json:"role"`
}

// ParticipantLeftPayload announces a disconnect.
type ParticipantLeftPayload struct {
	UserID uuid.UUID `json:"userId"`
}

// ParticipantVotedPayload announces that a participant voted. The value is
// withheld until reveal.
type ParticipantVotedPayload struct {
	UserID  uuid.UUID `json:"userId"`
	StoryID uuid.UUID `json:"storyId"`
}

// ParticipantStatsPayload summarizes round progress.
type ParticipantStatsPayload struct {
	Total       int `json:"total"`
	Voted       int `json:"voted"`
	StillVoting int `json:"stillVoting"`
	Idle        int `json:"idle"`
	Percentage  int `json:"percentage"`
}

// VotingStartedPayload announces a new round.
type VotingStartedPayload struct {
	RoundID  uuid.UUID `json:"roundId"`
	StoryID  uuid.UUID `json:"storyId"`
	Duration int       `json:"duration"`
}

// VotingEndedPayload announces that the round stopped accepting votes.
type VotingEndedPayload struct {
	StoryID uuid.UUID        `json:"storyId"`
	Reason  models.EndReason `json:"reason"`
}

// TimerUpdatePayload is the per-second countdown broadcast.
type TimerUpdatePayload struct {
	StoryID  uuid.UUID         `json:"storyId"`
	TimeLeft int               `json:"timeLeft"`
	Duration int               `json:"duration"`
	Urgency  votetimer.Urgency `json:"urgency"`
}

// TimerExpiredPayload is sent to facilitators when the countdown hits zero.
type TimerExpiredPayload struct {
	SessionID uuid.UUID `json:"sessionId"`
	StoryID   uuid.UUID `json:"storyId"`
}

// RevealReadyPayload tells facilitators every online participant has voted.
type RevealReadyPayload struct {
	StoryID uuid.UUID        `json:"storyId"`
	Reason  models.EndReason `json:"reason"`
}

// RevealedVote is one entry of a revealed snapshot.
type RevealedVote struct {
	UserID uuid.UUID `json:"userId"`
	Value  string    `json:"value"`
}

// VotesRevealedPayload carries the full disclosed round.
type VotesRevealedPayload struct {
	StoryID             uuid.UUID      `json:"storyId"`
	Votes               []RevealedVote `json:"votes"`
	Distribution        map[string]int `json:"distribution"`
	ConsensusPercentage int            `json:"consensusPercentage"`
	AverageVote         *float64       `json:"averageVote,omitempty"`
}

// VotesClearedPayload resets clients for a revote.
type VotesClearedPayload struct {
	StoryID uuid.UUID `json:"storyId"`
}

// StoryFinalizedPayload announces a permanent score.
type StoryFinalizedPayload struct {
	StoryID    uuid.UUID `json:"storyId"`
	FinalScore float64   `json:"finalScore"`
}

// PersistFailedPayload tells facilitators a reveal could not be written
// durably so they can trigger a manual retry.
type PersistFailedPayload struct {
	StoryID uuid.UUID `json:"storyId"`
	RoundID uuid.UUID `json:"roundId"`
	Error   string    `json:"error"`
}
