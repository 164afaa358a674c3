// Package ledger holds the in-memory vote table for open rounds. Votes stay
// hidden here until the round coordinator reveals them; durable persistence
// happens only at reveal time.
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pointdeck/internal/models"
)

// Ledger stores submitted votes keyed by round and participant.
// Resubmission overwrites in place, so each participant contributes at most
// one entry per round.
type Ledger struct {
	mu    sync.RWMutex
	votes map[uuid.UUID]map[uuid.UUID]models.Vote // roundID -> userID -> vote
	now   func() time.Time
}

// NewLedger creates an empty vote ledger.
func NewLedger() *Ledger {
	return &Ledger{
		votes: make(map[uuid.UUID]map[uuid.UUID]models.Vote),
		now:   time.Now,
	}
}

// Submit upserts a participant's vote for the round.
func (l *Ledger) Submit(roundID, storyID, userID uuid.UUID, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.votes[roundID] == nil {
		l.votes[roundID] = make(map[uuid.UUID]models.Vote)
	}
	l.votes[roundID][userID] = models.Vote{
		RoundID:     roundID,
		StoryID:     storyID,
		UserID:      userID,
		Value:       value,
		SubmittedAt: l.now(),
	}
}

// Count returns how many participants have voted in the round.
func (l *Ledger) Count(roundID uuid.UUID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.votes[roundID])
}

// HasVoted reports whether the participant has a ledger entry for the round.
func (l *Ledger) HasVoted(roundID, userID uuid.UUID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.votes[roundID][userID]
	return ok
}

// Snapshot returns one vote per known participant, in the order given.
// Participants without a ledger entry are materialized with the "No Vote"
// sentinel at snapshot time.
func (l *Ledger) Snapshot(roundID, storyID uuid.UUID, known []models.Participant) []models.Vote {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Vote, 0, len(known))
	for _, p := range known {
		if v, ok := l.votes[roundID][p.UserID]; ok {
			out = append(out, v)
			continue
		}
		out = append(out, models.Vote{
			RoundID:     roundID,
			StoryID:     storyID,
			UserID:      p.UserID,
			Value:       models.NoVote,
			SubmittedAt: l.now(),
		})
	}
	return out
}

// Clear drops all votes for the round.
func (l *Ledger) Clear(roundID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.votes, roundID)
}
