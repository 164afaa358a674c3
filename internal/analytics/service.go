package analytics

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mcdev12/pointdeck/internal/models"
)

// StoryLister supplies a session's backlog.
type StoryLister interface {
	ListStoriesBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Story, error)
}

// RoundLister supplies a session's persisted rounds.
type RoundLister interface {
	GetRoundsBySession(ctx context.Context, sessionID uuid.UUID) ([]models.VotingRound, error)
}

// Service exposes session analytics over JSON REST.
type Service struct {
	stories StoryLister
	rounds  RoundLister
}

// NewService creates the analytics HTTP service.
func NewService(stories StoryLister, rounds RoundLister) *Service {
	return &Service{stories: stories, rounds: rounds}
}

// RegisterRoutes mounts the analytics routes.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/analytics", s.handleSessionAnalytics)
}

func (s *Service) handleSessionAnalytics(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	stories, err := s.stories.ListStoriesBySession(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rounds, err := s.rounds.GetRoundsBySession(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, Summarize(stories, rounds))
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
