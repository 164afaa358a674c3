package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mcdev12/pointdeck/internal/models"
)

// VoteRepository persists revealed rounds. The in-memory ledger is the
// source of truth while a round is open; these writes happen once per
// reveal.
type VoteRepository struct {
	sqlDB *sql.DB
}

// NewVoteRepository creates a repository backed by the given database.
func NewVoteRepository(sqlDB *sql.DB) *VoteRepository {
	return &VoteRepository{sqlDB: sqlDB}
}

// SaveVotes writes a revealed round's full snapshot in one batch insert.
// Re-running the same snapshot is safe: the (round, user) key upserts.
func (r *VoteRepository) SaveVotes(ctx context.Context, votes []models.Vote) error {
	if len(votes) == 0 {
		return nil
	}

	roundIDs := make([]uuid.UUID, len(votes))
	storyIDs := make([]uuid.UUID, len(votes))
	userIDs := make([]uuid.UUID, len(votes))
	values := make([]string, len(votes))
	submittedAts := make([]time.Time, len(votes))

	for i, v := range votes {
		roundIDs[i] = v.RoundID
		storyIDs[i] = v.StoryID
		userIDs[i] = v.UserID
		values[i] = v.Value
		submittedAts[i] = v.SubmittedAt
	}

	_, err := r.sqlDB.ExecContext(ctx, `
		INSERT INTO votes (round_id, story_id, user_id, value, submitted_at)
		SELECT * FROM unnest($1::uuid[], $2::uuid[], $3::uuid[], $4::text[], $5::timestamptz[])
		ON CONFLICT (round_id, user_id)
		DO UPDATE SET value = EXCLUDED.value, submitted_at = EXCLUDED.submitted_at`,
		pq.Array(roundIDs), pq.Array(storyIDs), pq.Array(userIDs),
		pq.Array(values), pq.Array(submittedAts),
	)
	if err != nil {
		return fmt.Errorf("failed to batch insert votes: %w", err)
	}

	return nil
}

// SaveRoundOutcome upserts the round row with its terminal state and
// computed statistics.
func (r *VoteRepository) SaveRoundOutcome(ctx context.Context, round *models.VotingRound) error {
	var consensus sql.NullInt32
	if round.ConsensusPercentage != nil {
		consensus = sql.NullInt32{Int32: int32(*round.ConsensusPercentage), Valid: true}
	}

	var average sql.NullString
	if round.AverageVote != nil {
		average = sql.NullString{String: fmt.Sprintf("%.2f", *round.AverageVote), Valid: true}
	}

	var endedBy, revealedBy uuid.NullUUID
	if round.EndedBy != nil {
		endedBy = uuid.NullUUID{UUID: *round.EndedBy, Valid: true}
	}
	if round.RevealedBy != nil {
		revealedBy = uuid.NullUUID{UUID: *round.RevealedBy, Valid: true}
	}

	var endedAt, revealedAt sql.NullTime
	if round.EndedAt != nil {
		endedAt = sql.NullTime{Time: *round.EndedAt, Valid: true}
	}
	if round.RevealedAt != nil {
		revealedAt = sql.NullTime{Time: *round.RevealedAt, Valid: true}
	}

	_, err := r.sqlDB.ExecContext(ctx, `
		INSERT INTO voting_rounds (
			id, session_id, story_id, state, timer_duration, started_at,
			ended_at, ended_by, end_reason, revealed_at, revealed_by,
			consensus_percentage, average_vote
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			ended_at = EXCLUDED.ended_at,
			ended_by = EXCLUDED.ended_by,
			end_reason = EXCLUDED.end_reason,
			revealed_at = EXCLUDED.revealed_at,
			revealed_by = EXCLUDED.revealed_by,
			consensus_percentage = EXCLUDED.consensus_percentage,
			average_vote = EXCLUDED.average_vote`,
		round.ID, round.SessionID, round.StoryID, string(round.State),
		round.TimerDuration, round.StartedAt,
		endedAt, endedBy, string(round.EndReason), revealedAt, revealedBy,
		consensus, average,
	)
	if err != nil {
		return fmt.Errorf("failed to save round outcome: %w", err)
	}

	return nil
}

// GetRoundsBySession returns persisted rounds for a session, newest first.
func (r *VoteRepository) GetRoundsBySession(ctx context.Context, sessionID uuid.UUID) ([]models.VotingRound, error) {
	rows, err := r.sqlDB.QueryContext(ctx, `
		SELECT id, session_id, story_id, state, timer_duration, started_at,
		       ended_at, ended_by, end_reason, revealed_at, revealed_by,
		       consensus_percentage, average_vote
		FROM voting_rounds
		WHERE session_id = $1
		ORDER BY started_at DESC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	var rounds []models.VotingRound
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}

// GetVotesByRound returns the persisted snapshot of one round.
func (r *VoteRepository) GetVotesByRound(ctx context.Context, roundID uuid.UUID) ([]models.Vote, error) {
	rows, err := r.sqlDB.QueryContext(ctx, `
		SELECT round_id, story_id, user_id, value, submitted_at
		FROM votes
		WHERE round_id = $1
		ORDER BY submitted_at ASC`,
		roundID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.RoundID, &v.StoryID, &v.UserID, &v.Value, &v.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func scanRound(rows *sql.Rows) (models.VotingRound, error) {
	var (
		round      models.VotingRound
		state      string
		endReason  sql.NullString
		endedAt    sql.NullTime
		revealedAt sql.NullTime
		endedBy    uuid.NullUUID
		revealedBy uuid.NullUUID
		consensus  sql.NullInt32
		average    sql.NullFloat64
	)

	err := rows.Scan(
		&round.ID, &round.SessionID, &round.StoryID, &state,
		&round.TimerDuration, &round.StartedAt,
		&endedAt, &endedBy, &endReason, &revealedAt, &revealedBy,
		&consensus, &average,
	)
	if err != nil {
		return models.VotingRound{}, fmt.Errorf("failed to scan round: %w", err)
	}

	round.State = models.RoundState(state)
	if endReason.Valid {
		round.EndReason = models.EndReason(endReason.String)
	}
	if endedAt.Valid {
		round.EndedAt = &endedAt.Time
	}
	if revealedAt.Valid {
		round.RevealedAt = &revealedAt.Time
	}
	if endedBy.Valid {
		round.EndedBy = &endedBy.UUID
	}
	if revealedBy.Valid {
		round.RevealedBy = &revealedBy.UUID
	}
	if consensus.Valid {
		c := int(consensus.Int32)
		round.ConsensusPercentage = &c
	}
	if average.Valid {
		a := average.Float64
		round.AverageVote = &a
	}

	return round, nil
}
