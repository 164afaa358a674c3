package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Client message types. Anything outside this set is rejected at the
// boundary before it reaches the coordinator.
const (
	MsgJoinSession   = "join_session"
	MsgVoteSubmit    = "vote_submit"
	MsgStartVoting   = "start_voting_timer"
	MsgEndVoting     = "end_voting_early"
	MsgRevealVotes   = "reveal_votes"
	MsgRevote        = "revote"
	MsgFinalizeStory = "finalize_story"
)

// ClientMessage is the inbound frame envelope.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ServerEvent is the outbound frame envelope.
type ServerEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// JoinSessionPayload asks to enter a session room.
type JoinSessionPayload struct {
	SessionID uuid.UUID `json:"sessionId"`
}

// VoteSubmitPayload carries one vote for the active round.
type VoteSubmitPayload struct {
	SessionID uuid.UUID `json:"sessionId"`
	StoryID   uuid.UUID `json:"storyId"`
	Value     string    `json:"value"`
}

// StartVotingPayload opens a round for a story. Duration zero falls back
// to the session's configured timer duration.
type StartVotingPayload struct {
	SessionID uuid.UUID `json:"sessionId"`
	StoryID   uuid.UUID `json:"storyId"`
	Duration  int       `json:"duration,omitempty"`
}

// StoryActionPayload addresses an existing round: end early, reveal, revote.
type StoryActionPayload struct {
	SessionID uuid.UUID `json:"sessionId"`
	StoryID   uuid.UUID `json:"storyId"`
}

// FinalizeStoryPayload records an agreed score for a story.
type FinalizeStoryPayload struct {
	SessionID  uuid.UUID `json:"sessionId"`
	StoryID    uuid.UUID `json:"storyId"`
	FinalScore float64   `json:"finalScore"`
}

// ErrorPayload is sent to the offending connection only.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// ParseClientMessage decodes an inbound frame and its typed payload.
// Unknown types and malformed payloads are rejected here.
func ParseClientMessage(raw []byte) (*ClientMessage, interface{}, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, nil, fmt.Errorf("malformed message: %w", err)
	}

	var payload interface{}
	switch msg.Type {
	case MsgJoinSession:
		payload = &JoinSessionPayload{}
	case MsgVoteSubmit:
		payload = &VoteSubmitPayload{}
	case MsgStartVoting:
		payload = &StartVotingPayload{}
	case MsgEndVoting, MsgRevealVotes, MsgRevote:
		payload = &StoryActionPayload{}
	case MsgFinalizeStory:
		payload = &FinalizeStoryPayload{}
	default:
		return nil, nil, fmt.Errorf("unknown message type %q", msg.Type)
	}

	if err := json.Unmarshal(msg.Data, payload); err != nil {
		return nil, nil, fmt.Errorf("invalid %s payload: %w", msg.Type, err)
	}
	if err := validatePayload(msg.Type, payload); err != nil {
		return nil, nil, err
	}
	return &msg, payload, nil
}

func validatePayload(msgType string, payload interface{}) error {
	switch p := payload.(type) {
	case *JoinSessionPayload:
		if p.SessionID == uuid.Nil {
			return fmt.Errorf("%s: sessionId is required", msgType)
		}
	case *VoteSubmitPayload:
		if p.SessionID == uuid.Nil || p.StoryID == uuid.Nil {
			return fmt.Errorf("%s: sessionId and storyId are required", msgType)
		}
		if p.Value == "" {
			return fmt.Errorf("%s: value is required", msgType)
		}
	case *StartVotingPayload:
		if p.SessionID == uuid.Nil || p.StoryID == uuid.Nil {
			return fmt.Errorf("%s: sessionId and storyId are required", msgType)
		}
		if p.Duration < 0 {
			return fmt.Errorf("%s: duration must not be negative", msgType)
		}
	case *StoryActionPayload:
		if p.SessionID == uuid.Nil || p.StoryID == uuid.Nil {
			return fmt.Errorf("%s: sessionId and storyId are required", msgType)
		}
	case *FinalizeStoryPayload:
		if p.SessionID == uuid.Nil || p.StoryID == uuid.Nil {
			return fmt.Errorf("%s: sessionId and storyId are required", msgType)
		}
		if p.FinalScore < 0 {
			return fmt.Errorf("%s: finalScore must not be negative", msgType)
		}
	}
	return nil
}
