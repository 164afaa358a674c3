package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/pointdeck/internal/models"
)

// Repository persists sessions and their membership records.
type Repository struct {
	sqlDB *sql.DB
}

// NewRepository creates a sessions repository.
func NewRepository(sqlDB *sql.DB) *Repository {
	return &Repository{sqlDB: sqlDB}
}

func (r *Repository) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := r.sqlDB.ExecContext(ctx, `
		INSERT INTO sessions (id, name, deck_type, timer_duration, max_participants, facilitator_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.Name, s.DeckType, s.TimerDuration, s.MaxParticipants, s.FacilitatorID, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var s models.Session
	err := r.sqlDB.QueryRowContext(ctx, `
		SELECT id, name, deck_type, timer_duration, max_participants, facilitator_id, created_at, updated_at
		FROM sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Name, &s.DeckType, &s.TimerDuration, &s.MaxParticipants, &s.FacilitatorID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

func (r *Repository) UpdateSession(ctx context.Context, s *models.Session) error {
	_, err := r.sqlDB.ExecContext(ctx, `
		UPDATE sessions
		SET name = $2, deck_type = $3, timer_duration = $4, max_participants = $5, updated_at = $6
		WHERE id = $1`,
		s.ID, s.Name, s.DeckType, s.TimerDuration, s.MaxParticipants, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (r *Repository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := r.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *Repository) ListSessionsByFacilitator(ctx context.Context, facilitatorID uuid.UUID) ([]models.Session, error) {
	rows, err := r.sqlDB.QueryContext(ctx, `
		SELECT id, name, deck_type, timer_duration, max_participants, facilitator_id, created_at, updated_at
		FROM sessions WHERE facilitator_id = $1
		ORDER BY created_at DESC`,
		facilitatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.Name, &s.DeckType, &s.TimerDuration, &s.MaxParticipants, &s.FacilitatorID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertParticipant records a membership. The (session, user) key is unique;
// rejoining refreshes the role and activity timestamp.
func (r *Repository) UpsertParticipant(ctx context.Context, p models.Participant) error {
	_, err := r.sqlDB.ExecContext(ctx, `
		INSERT INTO session_participants (session_id, user_id, role, joined_at, last_active_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, user_id)
		DO UPDATE SET role = EXCLUDED.role, last_active_at = EXCLUDED.last_active_at`,
		p.SessionID, p.UserID, string(p.Role), p.JoinedAt, p.LastActiveAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert participant: %w", err)
	}
	return nil
}

// TouchParticipant refreshes a member's activity timestamp.
func (r *Repository) TouchParticipant(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) error {
	_, err := r.sqlDB.ExecContext(ctx, `
		UPDATE session_participants SET last_active_at = $3
		WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to touch participant: %w", err)
	}
	return nil
}

// ListParticipants returns the durable membership roster for a session.
func (r *Repository) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.sqlDB.QueryContext(ctx, `
		SELECT session_id, user_id, role, joined_at, last_active_at
		FROM session_participants
		WHERE session_id = $1
		ORDER BY joined_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		var role string
		if err := rows.Scan(&p.SessionID, &p.UserID, &role, &p.JoinedAt, &p.LastActiveAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.Role = models.ParticipantRole(role)
		out = append(out, p)
	}
	return out, rows.Err()
}
