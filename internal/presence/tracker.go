// Package presence tracks which participants are connected to each session.
// Records are only ever marked offline, never removed, so in-flight votes
// and statistics stay attributable after a disconnect.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pointdeck/internal/models"
)

type sessionKey struct {
	sessionID uuid.UUID
	userID    uuid.UUID
}

// Tracker maintains the in-memory participant set per session.
type Tracker struct {
	mu      sync.RWMutex
	members map[sessionKey]*models.Participant
	now     func() time.Time
}

// NewTracker creates an empty presence tracker.
func NewTracker() *Tracker {
	return &Tracker{
		members: make(map[sessionKey]*models.Participant),
		now:     time.Now,
	}
}

// Join registers a participant as online. Re-joining an existing member
// updates the online flag and last-active time instead of duplicating the
// record. The returned view is a copy.
func (t *Tracker) Join(sessionID, userID uuid.UUID, role models.ParticipantRole) models.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey{sessionID, userID}
	now := t.now()

	p, ok := t.members[key]
	if !ok {
		p = &models.Participant{
			SessionID: sessionID,
			UserID:    userID,
			Status:    models.StatusIdle,
			JoinedAt:  now,
		}
		t.members[key] = p
	}
	p.Role = role
	p.IsOnline = true
	p.LastActiveAt = now
	return *p
}

// MarkOffline flags the participant as disconnected without removing the
// record. Unknown members are a no-op.
func (t *Tracker) MarkOffline(sessionID, userID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.members[sessionKey{sessionID, userID}]; ok {
		p.IsOnline = false
		p.LastActiveAt = t.now()
	}
}

// SetStatus updates a participant's voting status and refreshes last-active.
func (t *Tracker) SetStatus(sessionID, userID uuid.UUID, status models.ParticipantStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.members[sessionKey{sessionID, userID}]; ok {
		p.Status = status
		p.LastActiveAt = t.now()
	}
}

// ResetStatuses moves every tracked participant of the session to the given
// status. Used when a round starts or a revote clears the table.
func (t *Tracker) ResetStatuses(sessionID uuid.UUID, status models.ParticipantStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for key, p := range t.members {
		if key.sessionID == sessionID {
			p.Status = status
			p.LastActiveAt = now
		}
	}
}

// List returns copies of all tracked participants for the session, ordered
// by join time.
func (t *Tracker) List(sessionID uuid.UUID) []models.Participant {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []models.Participant
	for key, p := range t.members {
		if key.sessionID == sessionID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Online returns copies of the currently connected participants for the
// session, ordered by join time.
func (t *Tracker) Online(sessionID uuid.UUID) []models.Participant {
	all := t.List(sessionID)
	out := all[:0]
	for _, p := range all {
		if p.IsOnline {
			out = append(out, p)
		}
	}
	return out
}
