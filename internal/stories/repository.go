package stories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcdev12/pointdeck/internal/models"
)

// Repository persists stories.
type Repository struct {
	sqlDB *sql.DB
}

// NewRepository creates a stories repository.
func NewRepository(sqlDB *sql.DB) *Repository {
	return &Repository{sqlDB: sqlDB}
}

func (r *Repository) CreateStory(ctx context.Context, s *models.Story) error {
	_, err := r.sqlDB.ExecContext(ctx, `
		INSERT INTO stories (id, session_id, title, description, order_index, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.SessionID, s.Title, s.Description, s.OrderIndex, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create story: %w", err)
	}
	return nil
}

func (r *Repository) GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	var (
		s     models.Story
		score sql.NullFloat64
	)
	err := r.sqlDB.QueryRowContext(ctx, `
		SELECT id, session_id, title, description, order_index, final_score, created_at, updated_at
		FROM stories WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.SessionID, &s.Title, &s.Description, &s.OrderIndex, &score, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	if score.Valid {
		v := score.Float64
		s.FinalScore = &v
	}
	return &s, nil
}

func (r *Repository) UpdateStory(ctx context.Context, s *models.Story) error {
	var score sql.NullFloat64
	if s.FinalScore != nil {
		score = sql.NullFloat64{Float64: *s.FinalScore, Valid: true}
	}
	_, err := r.sqlDB.ExecContext(ctx, `
		UPDATE stories
		SET title = $2, description = $3, order_index = $4, final_score = $5, updated_at = $6
		WHERE id = $1`,
		s.ID, s.Title, s.Description, s.OrderIndex, score, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update story: %w", err)
	}
	return nil
}

func (r *Repository) DeleteStory(ctx context.Context, id uuid.UUID) error {
	_, err := r.sqlDB.ExecContext(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	return nil
}

func (r *Repository) ListStoriesBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Story, error) {
	rows, err := r.sqlDB.QueryContext(ctx, `
		SELECT id, session_id, title, description, order_index, final_score, created_at, updated_at
		FROM stories WHERE session_id = $1
		ORDER BY order_index ASC, created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	var out []models.Story
	for rows.Next() {
		var (
			s     models.Story
			score sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &s.SessionID, &s.Title, &s.Description, &s.OrderIndex, &score, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		if score.Valid {
			v := score.Float64
			s.FinalScore = &v
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// NextOrderIndex returns the index after the session's current last story.
func (r *Repository) NextOrderIndex(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var next int
	err := r.sqlDB.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(order_index) + 1, 0) FROM stories WHERE session_id = $1`,
		sessionID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next order index: %w", err)
	}
	return next, nil
}
