package sessions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/pointdeck/internal/deck"
	"github.com/mcdev12/pointdeck/internal/models"
)

type fakeRepo struct {
	sessions     map[uuid.UUID]*models.Session
	participants map[string]models.Participant
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sessions:     make(map[uuid.UUID]*models.Session),
		participants: make(map[string]models.Participant),
	}
}

func participantKey(sessionID, userID uuid.UUID) string {
	return sessionID.String() + "/" + userID.String()
}

func (f *fakeRepo) CreateSession(ctx context.Context, s *models.Session) error {
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeRepo) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) UpdateSession(ctx context.Context, s *models.Session) error {
	if _, ok := f.sessions[s.ID]; !ok {
		return fmt.Errorf("session not found")
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeRepo) DeleteSession(ctx context.Context, id uuid.UUID) error {
	delete(f.sessions, id)
	return nil
}

func (f *fakeRepo) ListSessionsByFacilitator(ctx context.Context, facilitatorID uuid.UUID) ([]models.Session, error) {
	var out []models.Session
	for _, s := range f.sessions {
		if s.FacilitatorID == facilitatorID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertParticipant(ctx context.Context, p models.Participant) error {
	f.participants[participantKey(p.SessionID, p.UserID)] = p
	return nil
}

func (f *fakeRepo) TouchParticipant(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) error {
	key := participantKey(sessionID, userID)
	p, ok := f.participants[key]
	if !ok {
		return fmt.Errorf("participant not found")
	}
	p.LastActiveAt = at
	f.participants[key] = p
	return nil
}

func (f *fakeRepo) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	var out []models.Participant
	for _, p := range f.participants {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestApp() (*App, *fakeRepo) {
	repo := newFakeRepo()
	return NewApp(repo, deck.NewRegistry()), repo
}

func TestCreateSessionDefaults(t *testing.T) {
	app, _ := newTestApp()

	session, err := app.CreateSession(context.Background(), CreateSessionRequest{
		Name:          "sprint 14 planning",
		FacilitatorID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if session.DeckType != "fibonacci" {
		t.Errorf("deck type = %q, want fibonacci", session.DeckType)
	}
	if session.TimerDuration != 60 {
		t.Errorf("timer duration = %d, want 60", session.TimerDuration)
	}
	if session.MaxParticipants != 16 {
		t.Errorf("max participants = %d, want 16", session.MaxParticipants)
	}
	if session.ID == uuid.Nil {
		t.Error("session id not assigned")
	}
}

func TestCreateSessionValidation(t *testing.T) {
	app, _ := newTestApp()
	facilitator := uuid.New()

	tests := []struct {
		name string
		req  CreateSessionRequest
	}{
		{"missing name", CreateSessionRequest{FacilitatorID: facilitator}},
		{"missing facilitator", CreateSessionRequest{Name: "x"}},
		{"unknown deck", CreateSessionRequest{Name: "x", FacilitatorID: facilitator, DeckType: "tarot"}},
		{"timer too long", CreateSessionRequest{Name: "x", FacilitatorID: facilitator, TimerDuration: 3600}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := app.CreateSession(context.Background(), tt.req); err == nil {
				t.Fatal("CreateSession accepted an invalid request")
			}
		})
	}
}

func TestUpdateSessionPartial(t *testing.T) {
	app, _ := newTestApp()

	session, err := app.CreateSession(context.Background(), CreateSessionRequest{
		Name:          "planning",
		FacilitatorID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	newDuration := 120
	updated, err := app.UpdateSession(context.Background(), session.ID, UpdateSessionRequest{
		TimerDuration: &newDuration,
	})
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	if updated.TimerDuration != 120 {
		t.Errorf("timer duration = %d, want 120", updated.TimerDuration)
	}
	if updated.Name != "planning" {
		t.Errorf("name changed to %q on partial update", updated.Name)
	}
}

func TestRecordJoinAndLeave(t *testing.T) {
	app, repo := newTestApp()
	sessionID := uuid.New()
	userID := uuid.New()

	joined := time.Now().Add(-time.Minute)
	err := app.RecordJoin(context.Background(), models.Participant{
		SessionID:    sessionID,
		UserID:       userID,
		Role:         models.RoleFacilitator,
		JoinedAt:     joined,
		LastActiveAt: joined,
	})
	if err != nil {
		t.Fatalf("RecordJoin: %v", err)
	}

	if err := app.RecordLeave(context.Background(), sessionID, userID); err != nil {
		t.Fatalf("RecordLeave: %v", err)
	}

	p := repo.participants[participantKey(sessionID, userID)]
	if !p.LastActiveAt.After(joined) {
		t.Error("RecordLeave did not refresh LastActiveAt")
	}
	if p.Role != models.RoleFacilitator {
		t.Errorf("role = %q, want facilitator", p.Role)
	}
}
