// Package sessions handles estimation session management: CRUD, defaults
// and the durable membership roster.
package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pointdeck/internal/deck"
	"github.com/mcdev12/pointdeck/internal/models"
)

const (
	defaultTimerDuration   = 60
	defaultMaxParticipants = 16
	maxTimerDuration       = 600
)

// SessionsRepository defines what the app layer needs from the repository.
type SessionsRepository interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	UpdateSession(ctx context.Context, s *models.Session) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	ListSessionsByFacilitator(ctx context.Context, facilitatorID uuid.UUID) ([]models.Session, error)
	UpsertParticipant(ctx context.Context, p models.Participant) error
	TouchParticipant(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) error
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
}

// App handles session business logic.
type App struct {
	repo  SessionsRepository
	decks *deck.Registry
}

// NewApp creates a sessions App.
func NewApp(repo SessionsRepository, decks *deck.Registry) *App {
	return &App{repo: repo, decks: decks}
}

// CreateSession creates a session with validated fields and defaults.
func (a *App) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("session name is required")
	}
	if req.FacilitatorID == uuid.Nil {
		return nil, fmt.Errorf("facilitator id is required")
	}

	deckType := req.DeckType
	if deckType == "" {
		deckType = "fibonacci"
	}
	if _, ok := a.decks.Get(deckType); !ok {
		return nil, fmt.Errorf("unknown deck type %q", deckType)
	}

	duration := req.TimerDuration
	if duration <= 0 {
		duration = defaultTimerDuration
	}
	if duration > maxTimerDuration {
		return nil, fmt.Errorf("timer duration %d exceeds maximum %d", duration, maxTimerDuration)
	}

	maxParticipants := req.MaxParticipants
	if maxParticipants <= 0 {
		maxParticipants = defaultMaxParticipants
	}

	now := time.Now()
	session := &models.Session{
		ID:              uuid.New(),
		Name:            req.Name,
		DeckType:        deckType,
		TimerDuration:   duration,
		MaxParticipants: maxParticipants,
		FacilitatorID:   req.FacilitatorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := a.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("name", session.Name).
		Str("deck_type", session.DeckType).
		Msg("created session")

	return session, nil
}

// GetSession retrieves a session by ID. Implements the coordinator's
// session lookup.
func (a *App) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return a.repo.GetSession(ctx, id)
}

// UpdateSession applies partial updates to a session.
func (a *App) UpdateSession(ctx context.Context, id uuid.UUID, req UpdateSessionRequest) (*models.Session, error) {
	session, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, fmt.Errorf("session name must not be empty")
		}
		session.Name = *req.Name
	}
	if req.DeckType != nil {
		if _, ok := a.decks.Get(*req.DeckType); !ok {
			return nil, fmt.Errorf("unknown deck type %q", *req.DeckType)
		}
		session.DeckType = *req.DeckType
	}
	if req.TimerDuration != nil {
		if *req.TimerDuration <= 0 || *req.TimerDuration > maxTimerDuration {
			return nil, fmt.Errorf("timer duration must be between 1 and %d seconds", maxTimerDuration)
		}
		session.TimerDuration = *req.TimerDuration
	}
	if req.MaxParticipants != nil {
		if *req.MaxParticipants <= 0 {
			return nil, fmt.Errorf("max participants must be positive")
		}
		session.MaxParticipants = *req.MaxParticipants
	}
	session.UpdatedAt = time.Now()

	if err := a.repo.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession removes a session and, via cascade, its stories and rounds.
func (a *App) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return a.repo.DeleteSession(ctx, id)
}

// ListSessionsByFacilitator returns the sessions a user runs.
func (a *App) ListSessionsByFacilitator(ctx context.Context, facilitatorID uuid.UUID) ([]models.Session, error) {
	return a.repo.ListSessionsByFacilitator(ctx, facilitatorID)
}

// ListParticipants returns the durable roster for a session.
func (a *App) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	return a.repo.ListParticipants(ctx, sessionID)
}

// RecordJoin persists a membership record. Implements the coordinator's
// participant recorder.
func (a *App) RecordJoin(ctx context.Context, p models.Participant) error {
	return a.repo.UpsertParticipant(ctx, p)
}

// RecordLeave refreshes the member's last activity on disconnect.
func (a *App) RecordLeave(ctx context.Context, sessionID, userID uuid.UUID) error {
	return a.repo.TouchParticipant(ctx, sessionID, userID, time.Now())
}
