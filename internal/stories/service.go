package stories

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Service exposes story management over JSON REST.
type Service struct {
	app *App
}

// NewService creates the HTTP service for stories.
func NewService(app *App) *Service {
	return &Service{app: app}
}

// RegisterRoutes mounts the story routes.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Post("/stories", s.handleCreateStory)
	r.Get("/stories/{storyID}", s.handleGetStory)
	r.Patch("/stories/{storyID}", s.handleUpdateStory)
	r.Delete("/stories/{storyID}", s.handleDeleteStory)
	r.Get("/sessions/{sessionID}/stories", s.handleListStories)
}

func (s *Service) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var req CreateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	story, err := s.app.CreateStory(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, story)
}

func (s *Service) handleGetStory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "storyID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid story id")
		return
	}

	story, err := s.app.GetStory(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "story not found")
		return
	}
	respondJSON(w, http.StatusOK, story)
}

func (s *Service) handleUpdateStory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "storyID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid story id")
		return
	}

	var req UpdateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	story, err := s.app.UpdateStory(r.Context(), id, req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, story)
}

func (s *Service) handleDeleteStory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "storyID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid story id")
		return
	}

	if err := s.app.DeleteStory(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Service) handleListStories(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	stories, err := s.app.ListStoriesBySession(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stories)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
