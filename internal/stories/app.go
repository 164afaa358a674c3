// Package stories manages the work items estimated within a session,
// including the permanent score recorded when the team settles.
package stories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pointdeck/internal/models"
)

// StoriesRepository defines what the app layer needs from the repository.
type StoriesRepository interface {
	CreateStory(ctx context.Context, s *models.Story) error
	GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error)
	UpdateStory(ctx context.Context, s *models.Story) error
	DeleteStory(ctx context.Context, id uuid.UUID) error
	ListStoriesBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Story, error)
	NextOrderIndex(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// App handles story business logic.
type App struct {
	repo StoriesRepository
}

// NewApp creates a stories App.
func NewApp(repo StoriesRepository) *App {
	return &App{repo: repo}
}

// CreateStory adds a story to a session, appending to the backlog order
// when no explicit index is given.
func (a *App) CreateStory(ctx context.Context, req CreateStoryRequest) (*models.Story, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("story title is required")
	}
	if req.SessionID == uuid.Nil {
		return nil, fmt.Errorf("session id is required")
	}

	orderIndex := 0
	if req.OrderIndex != nil {
		orderIndex = *req.OrderIndex
	} else {
		next, err := a.repo.NextOrderIndex(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		orderIndex = next
	}

	now := time.Now()
	story := &models.Story{
		ID:          uuid.New(),
		SessionID:   req.SessionID,
		Title:       req.Title,
		Description: req.Description,
		OrderIndex:  orderIndex,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := a.repo.CreateStory(ctx, story); err != nil {
		return nil, err
	}
	return story, nil
}

// GetStory retrieves a story by ID.
func (a *App) GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	return a.repo.GetStory(ctx, id)
}

// UpdateStory applies partial updates to a story.
func (a *App) UpdateStory(ctx context.Context, id uuid.UUID, req UpdateStoryRequest) (*models.Story, error) {
	story, err := a.repo.GetStory(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		if *req.Title == "" {
			return nil, fmt.Errorf("story title must not be empty")
		}
		story.Title = *req.Title
	}
	if req.Description != nil {
		story.Description = *req.Description
	}
	if req.OrderIndex != nil {
		story.OrderIndex = *req.OrderIndex
	}
	story.UpdatedAt = time.Now()

	if err := a.repo.UpdateStory(ctx, story); err != nil {
		return nil, err
	}
	return story, nil
}

// DeleteStory removes a story and its persisted rounds.
func (a *App) DeleteStory(ctx context.Context, id uuid.UUID) error {
	return a.repo.DeleteStory(ctx, id)
}

// ListStoriesBySession returns a session's backlog in order.
func (a *App) ListStoriesBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Story, error) {
	return a.repo.ListStoriesBySession(ctx, sessionID)
}

// FinalizeScore records the agreed estimate for a story. Implements the
// coordinator's story finalizer.
func (a *App) FinalizeScore(ctx context.Context, storyID uuid.UUID, finalScore float64) (*models.Story, error) {
	if finalScore < 0 {
		return nil, fmt.Errorf("final score must not be negative")
	}

	story, err := a.repo.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}

	story.FinalScore = &finalScore
	story.UpdatedAt = time.Now()

	if err := a.repo.UpdateStory(ctx, story); err != nil {
		return nil, err
	}

	log.Info().
		Str("story_id", storyID.String()).
		Float64("final_score", finalScore).
		Msg("story finalized")

	return story, nil
}
