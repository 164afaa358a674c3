package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pointdeck/internal/models"
	"github.com/mcdev12/pointdeck/internal/round"
)

// Coordinator is the session operations surface the gateway dispatches to.
type Coordinator interface {
	Join(ctx context.Context, sessionID, userID uuid.UUID) (models.Participant, error)
	Leave(sessionID, userID uuid.UUID)
	StartRound(ctx context.Context, sessionID, storyID uuid.UUID, duration int, requester uuid.UUID) (*models.VotingRound, error)
	SubmitVote(ctx context.Context, sessionID, storyID, userID uuid.UUID, value string) error
	EndEarly(ctx context.Context, sessionID, storyID uuid.UUID, requester uuid.UUID) error
	Reveal(ctx context.Context, sessionID, storyID uuid.UUID, requester uuid.UUID) (*models.VotingRound, error)
	Revote(ctx context.Context, sessionID, storyID uuid.UUID, requester uuid.UUID) (*models.VotingRound, error)
	Finalize(ctx context.Context, sessionID, storyID uuid.UUID, finalScore float64, requester uuid.UUID) error
}

// TokenVerifier authenticates connection requests.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// Handler owns the WebSocket endpoint: it authenticates upgrades and routes
// client frames to the coordinator.
type Handler struct {
	manager     *Manager
	coordinator Coordinator
	verifier    TokenVerifier
}

// NewHandler wires the handler into the connection manager's callbacks.
func NewHandler(manager *Manager, coordinator Coordinator, verifier TokenVerifier) *Handler {
	h := &Handler{
		manager:     manager,
		coordinator: coordinator,
		verifier:    verifier,
	}
	manager.onMessage = h.dispatch
	manager.onDisconnect = h.disconnect
	return h
}

// ServeWS handles GET /ws?token=<jwt>. The token rides the query string
// because browser WebSocket clients cannot set headers.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	userID, err := h.verifier.Verify(token)
	if err != nil {
		log.Warn().Err(err).Msg("rejected WebSocket upgrade, invalid token")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	if _, err := h.manager.Upgrade(w, r, userID); err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
	}
}

// dispatch routes one inbound frame. Errors go back to the sender only,
// never to the room.
func (h *Handler) dispatch(conn *Connection, raw []byte) {
	msg, payload, err := ParseClientMessage(raw)
	if err != nil {
		log.Debug().Err(err).Str("connection_id", conn.ID).Msg("rejected client message")
		h.manager.SendDirect(conn, round.EventError, ErrorPayload{
			Code:    "bad_message",
			Message: err.Error(),
		})
		return
	}

	ctx := context.Background()

	switch p := payload.(type) {
	case *JoinSessionPayload:
		h.handleJoin(ctx, conn, p)

	case *VoteSubmitPayload:
		if !h.requireMembership(conn, p.SessionID, msg.Type) {
			return
		}
		if err := h.coordinator.SubmitVote(ctx, p.SessionID, p.StoryID, conn.UserID, p.Value); err != nil {
			h.sendError(conn, msg.Type, err)
		}

	case *StartVotingPayload:
		if !h.requireMembership(conn, p.SessionID, msg.Type) {
			return
		}
		if _, err := h.coordinator.StartRound(ctx, p.SessionID, p.StoryID, p.Duration, conn.UserID); err != nil {
			h.sendError(conn, msg.Type, err)
		}

	case *StoryActionPayload:
		if !h.requireMembership(conn, p.SessionID, msg.Type) {
			return
		}
		switch msg.Type {
		case MsgEndVoting:
			err = h.coordinator.EndEarly(ctx, p.SessionID, p.StoryID, conn.UserID)
		case MsgRevealVotes:
			_, err = h.coordinator.Reveal(ctx, p.SessionID, p.StoryID, conn.UserID)
		case MsgRevote:
			_, err = h.coordinator.Revote(ctx, p.SessionID, p.StoryID, conn.UserID)
		}
		if err != nil {
			h.sendError(conn, msg.Type, err)
		}

	case *FinalizeStoryPayload:
		if !h.requireMembership(conn, p.SessionID, msg.Type) {
			return
		}
		if err := h.coordinator.Finalize(ctx, p.SessionID, p.StoryID, p.FinalScore, conn.UserID); err != nil {
			h.sendError(conn, msg.Type, err)
		}
	}
}

// handleJoin admits the participant and binds the connection to the room.
// An unknown session is fatal for the connection.
func (h *Handler) handleJoin(ctx context.Context, conn *Connection, p *JoinSessionPayload) {
	participant, err := h.coordinator.Join(ctx, p.SessionID, conn.UserID)
	if err != nil {
		h.sendError(conn, MsgJoinSession, err)
		if errors.Is(err, round.ErrNotFound) {
			conn.Conn.Close()
		}
		return
	}

	h.manager.JoinRoom(conn, p.SessionID, participant.Role)
}

// disconnect marks the user offline in every session the connection joined.
func (h *Handler) disconnect(conn *Connection) {
	for _, sessionID := range conn.sessions() {
		h.coordinator.Leave(sessionID, conn.UserID)
	}
}

// requireMembership rejects operations on sessions the connection never
// joined.
func (h *Handler) requireMembership(conn *Connection, sessionID uuid.UUID, action string) bool {
	if conn.memberOf(sessionID) {
		return true
	}
	h.manager.SendDirect(conn, round.EventError, ErrorPayload{
		Code:    "not_joined",
		Message: "join the session before sending commands",
		Action:  action,
	})
	return false
}

// sendError maps coordinator errors to client-facing error codes and sends
// the result to the offending connection.
func (h *Handler) sendError(conn *Connection, action string, err error) {
	code := "internal_error"
	switch {
	case errors.Is(err, round.ErrNotFound):
		code = "session_not_found"
	case errors.Is(err, round.ErrForbidden):
		code = "forbidden"
	case errors.Is(err, round.ErrTimerActive):
		code = "timer_active"
	case errors.Is(err, round.ErrRoundClosed):
		code = "round_closed"
	case errors.Is(err, round.ErrInvalidVote):
		code = "invalid_vote"
	case errors.Is(err, round.ErrInvalidState):
		code = "invalid_state"
	}

	log.Debug().
		Err(err).
		Str("connection_id", conn.ID).
		Str("action", action).
		Str("code", code).
		Msg("operation rejected")

	h.manager.SendDirect(conn, round.EventError, ErrorPayload{
		Code:    code,
		Message: err.Error(),
		Action:  action,
	})
}
