// Package round implements the voting-round coordinator: the single
// authority for round lifecycle transitions, vote collection and the
// broadcast rules around them. All mutations for one session are serialized
// behind a per-session lock; sessions proceed fully in parallel.
package round

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pointdeck/internal/ledger"
	"github.com/mcdev12/pointdeck/internal/models"
	"github.com/mcdev12/pointdeck/internal/presence"
	"github.com/mcdev12/pointdeck/internal/stats"
	"github.com/mcdev12/pointdeck/internal/votetimer"
)

const defaultPersistRetryDelay = 200 * time.Millisecond

// persistAttempts bounds the durable-store retry loop during reveal.
const persistAttempts = 3

// Config wires the coordinator's collaborators.
type Config struct {
	Sessions  SessionLookup
	Store     VoteStore
	Broadcast Broadcaster
	Publisher OutcomePublisher
	Stories   StoryFinalizer
	Decks     DeckValidator
	// Participants is optional; when set, joins and leaves are recorded
	// durably in addition to the in-memory tracker.
	Participants ParticipantRecorder
	Clock        clockwork.Clock

	// PersistRetryDelay overrides the backoff between persistence retries.
	// Zero means the default; tests set a negative value to disable.
	PersistRetryDelay time.Duration
}

// App is the voting round state machine. It owns the presence tracker, the
// vote ledger and the timer scheduler, and consults the session collaborator
// for authorization.
type App struct {
	sessions     SessionLookup
	store        VoteStore
	broadcast    Broadcaster
	publisher    OutcomePublisher
	stories      StoryFinalizer
	decks        DeckValidator
	participants ParticipantRecorder

	presence *presence.Tracker
	ledger   *ledger.Ledger
	timers   *votetimer.Scheduler
	clock    clockwork.Clock

	retryDelay time.Duration

	mu     sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex
	rounds map[uuid.UUID]*models.VotingRound // current round per session
}

// NewApp creates the coordinator. The timer scheduler is owned by the app so
// expiry events re-enter the state machine through the same serialization
// point as client commands.
func NewApp(cfg Config) *App {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	delay := cfg.PersistRetryDelay
	if delay == 0 {
		delay = defaultPersistRetryDelay
	} else if delay < 0 {
		delay = 0
	}

	a := &App{
		sessions:     cfg.Sessions,
		store:        cfg.Store,
		broadcast:    cfg.Broadcast,
		publisher:    cfg.Publisher,
		stories:      cfg.Stories,
		decks:        cfg.Decks,
		participants: cfg.Participants,
		presence:     presence.NewTracker(),
		ledger:       ledger.NewLedger(),
		clock:        clock,
		retryDelay:   delay,
		locks:        make(map[uuid.UUID]*sync.Mutex),
		rounds:       make(map[uuid.UUID]*models.VotingRound),
	}
	a.timers = votetimer.NewSchedulerWithClock(a, clock)
	return a
}

// Presence exposes the tracker for read-only views (gateway stats).
func (a *App) Presence() *presence.Tracker {
	return a.presence
}

// sessionLock returns the mutex serializing all mutations for a session.
func (a *App) sessionLock(sessionID uuid.UUID) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[sessionID] = l
	}
	return l
}

// Join binds a participant to the session and announces it. Unknown sessions
// return ErrNotFound so the gateway can disconnect the offender.
func (a *App) Join(ctx context.Context, sessionID, userID uuid.UUID) (models.Participant, error) {
	l := a.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	sess, err := a.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return models.Participant{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	role := models.RoleParticipant
	if sess.FacilitatorID == userID {
		role = models.RoleFacilitator
	}

	p := a.presence.Join(sessionID, userID, role)

	// A late joiner enters an open round as a voter and counts toward the
	// completion denominator.
	if r, ok := a.rounds[sessionID]; ok && r.State == models.RoundStateVoting && r.Open() {
		a.presence.SetStatus(sessionID, userID, models.StatusVoting)
		p.Status = models.StatusVoting
	}

	if a.participants != nil {
		if err := a.participants.RecordJoin(ctx, p); err != nil {
			log.Warn().Err(err).
				Str("session_id", sessionID.String()).
				Str("user_id", userID.String()).
				Msg("failed to record participant join")
		}
	}

	a.broadcast.ToSession(sessionID, EventParticipantJoined, ParticipantJoinedPayload{UserID: userID, Role: role})
	a.broadcastStats(sessionID)

	log.Info().
		Str("session_id", sessionID.String()).
		Str("user_id", userID.String()).
		Str("role", string(role)).
		Msg("participant joined session")

	return p, nil
}

// Leave marks a participant offline without dropping their record or votes.
func (a *App) Leave(sessionID, userID uuid.UUID) {
	l := a.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	a.presence.MarkOffline(sessionID, userID)

	if a.participants != nil {
		if err := a.participants.RecordLeave(context.Background(), sessionID, userID); err != nil {
			log.Warn().Err(err).
				Str("session_id", sessionID.String()).
				Str("user_id", userID.String()).
				Msg("failed to record participant leave")
		}
	}

	a.broadcast.ToSession(sessionID, EventParticipantLeft, ParticipantLeftPayload{UserID: userID})
	a.broadcastStats(sessionID)
}

// StartRound opens a new voting round for a story. Facilitator only. Any
// currently open round for the session is force-ended first, which is what
// upholds the single-open-round invariant.
func (a *App) StartRound(ctx context.Context, sessionID, storyID uuid.UUID, duration int, requester uuid.UUID) (*models.VotingRound, error) {
	l := a.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	sess, err := a.authorize(ctx, sessionID, requester)
	if err != nil {
		return nil, err
	}

	if duration <= 0 {
		duration = sess.TimerDuration
	}

	now := a.clock.Now()
	if prev, ok := a.rounds[sessionID]; ok && prev.Open() {
		prev.EndedAt = &now
		prev.EndedBy = &requester
		prev.EndReason = models.EndReasonNewVotingStarted
		a.ledger.Clear(prev.ID)
	}

	r := &models.VotingRound{
		ID:            uuid.New(),
		SessionID:     sessionID,
		StoryID:       storyID,
		State:         models.RoundStateVoting,
		TimerDuration: duration,
		StartedAt:     now,
	}
	a.rounds[sessionID] = r

	a.presence.ResetStatuses(sessionID, models.StatusVoting)
	a.timers.Start(sessionID, storyID, duration)

	a.broadcast.ToSession(sessionID, EventVotingStarted, VotingStartedPayload{
		RoundID:  r.ID,
		StoryID:  storyID,
		Duration: duration,
	})
	a.broadcastStats(sessionID)

	log.Info().
		Str("session_id", sessionID.String()).
		Str("story_id", storyID.String()).
		Str("round_id", r.ID.String()).
		Int("duration", duration).
		Msg("voting round started")

	return a.copyRound(r), nil
}

// SubmitVote records a participant's vote for the open round. The value is
// withheld from other clients until reveal. When every online participant
// has voted the round auto-locks and facilitators get a reveal-eligibility
// notice; the reveal itself stays under facilitator control.
func (a *App) SubmitVote(ctx context.Context, sessionID, storyID, userID uuid.UUID, value string) error {
	l := a.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	sess, err := a.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	r, ok := a.rounds[sessionID]
	if !ok || r.StoryID != storyID {
		return fmt.Errorf("%w: no voting round for story %s", ErrNotFound, storyID)
	}

	switch r.State {
	case models.RoundStateRevealed, models.RoundStateFinalized:
		return ErrRoundClosed
	case models.RoundStateVoting:
		if !r.Open() {
			return fmt.Errorf("%w: voting already ended (%s)", ErrInvalidState, r.EndReason)
		}
	default:
		return fmt.Errorf("%w: cannot vote in state %s", ErrInvalidState, r.State)
	}

	if a.decks != nil && !a.decks.ValidCard(sess.DeckType, value) {
		return fmt.Errorf("%w: %q", ErrInvalidVote, value)
	}

	a.ledger.Submit(r.ID, storyID, userID, value)
	a.presence.SetStatus(sessionID, userID, models.StatusVoted)

	a.broadcast.ToSession(sessionID, EventParticipantVoted, ParticipantVotedPayload{UserID: userID, StoryID: storyID})
	a.broadcastStats(sessionID)

	if a.allOnlineVoted(sessionID, r.ID) {
		now := a.clock.Now()
		r.State = models.RoundStateLocked
		r.EndedAt = &now
		r.EndReason = models.EndReasonAllVoted
		a.timers.Cancel(sessionID)

		a.broadcast.ToSession(sessionID, EventVotingEnded, VotingEndedPayload{StoryID: storyID, Reason: models.EndReasonAllVoted})
		a.broadcast.ToFacilitators(sessionID, EventRevealReady, RevealReadyPayload{StoryID: storyID, Reason: models.EndReasonAllVoted})

		log.Info().
			Str("session_id", sessionID.String()).
			Str("story_id", storyID.String()).
			Msg("all online participants voted; round locked")
	}

	return nil
}

// EndEarly stops the countdown and locks the round before the timer runs
// out. Facilitator only.
func (a *App) EndEarly(ctx context.Context, sessionID, storyID uuid.UUID, requester uuid.UUID) error {
	l := a.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	if _, err := a.authorize(ctx, sessionID, requester); err != nil {
		return err
	}

	r, ok := a.rounds[sessionID]
	if !ok || r.StoryID != storyID {
		return fmt.Errorf("%w: no voting round for story %s", ErrNotFound, storyID)
	}
	if r.State != models.RoundStateVoting || !r.Open() {
		return fmt.Errorf("%w: cannot end early in state %s", ErrInvalidState, r.State)
	}

	a.timers.Cancel(sessionID)

	now := a.clock.Now()
	r.State = models.RoundStateLocked
	r.EndedAt = &now
	r.EndedBy = &requester
	r.EndReason = models.EndReasonEndedEarly

	a.broadcast.ToSession(sessionID, EventVotingEnded, VotingEndedPayload{StoryID: storyID, Reason: models.EndReasonEndedEarly})
	a.broadcast.ToFacilitators(sessionID, EventRevealReady, RevealReadyPayload{StoryID: storyID, Reason: models.EndReasonEndedEarly})

	return nil
}

// Reveal discloses the collected votes, computes statistics and persists the
// round durably. Facilitator only. Legal once the round is locked, or after
// the timer expired; illegal while the countdown still has time remaining.
// If persistence ultimately fails the in-memory reveal still proceeds and
// facilitators are told so they can retry.
func (a *App) Reveal(ctx context.Context, sessionID, storyID uuid.UUID, requester uuid.UUID) (*models.VotingRound, error) {
	l := a.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	if _, err := a.authorize(ctx, sessionID, requester); err != nil {
		return nil, err
	}

	r, ok := a.rounds[sessionID]
	if !ok || r.StoryID != storyID {
		return nil, fmt.Errorf("%w: no voting round for story %s", ErrNotFound, storyID)
	}

	switch r.State {
	case models.RoundStateLocked:
		// eligible
	case models.RoundStateVoting:
		if r.Open() {
			if _, active := a.timers.Active(sessionID); active {
				return nil, ErrTimerActive
			}
			return nil, fmt.Errorf("%w: voting still open", ErrInvalidState)
		}
		if r.EndReason != models.EndReasonTimerExpired {
			return nil, fmt.Errorf("%w: round ended with reason %s", ErrInvalidState, r.EndReason)
		}
	default:
		return nil, fmt.Errorf("%w: cannot reveal in state %s", ErrInvalidState, r.State)
	}

	a.timers.Cancel(sessionID)

	known := a.presence.List(sessionID)
	snapshot := a.ledger.Snapshot(r.ID, storyID, known)
	result := stats.Compute(snapshot)

	now := a.clock.Now()
	r.State = models.RoundStateRevealed
	r.RevealedAt = &now
	r.RevealedBy = &requester
	r.ConsensusPercentage = &result.ConsensusPercentage
	r.AverageVote = result.AverageVote

	if err := a.persistReveal(ctx, r, snapshot); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID.String()).
			Str("round_id", r.ID.String()).
			Msg("failed to persist revealed round; proceeding with in-memory reveal")
		a.broadcast.ToFacilitators(sessionID, EventPersistFailed, PersistFailedPayload{
			StoryID: storyID,
			RoundID: r.ID,
			Error:   err.Error(),
		})
	}

	if a.publisher != nil {
		if err := a.publisher.PublishRoundRevealed(ctx, r, result); err != nil {
			log.Warn().Err(err).Str("round_id", r.ID.String()).Msg("failed to publish round revealed event")
		}
	}

	revealed := make([]RevealedVote, len(snapshot))
	for i, v := range snapshot {
		revealed[i] = RevealedVote{UserID: v.UserID, Value: v.Value}
	}
	a.broadcast.ToSession(sessionID, EventVotesRevealed, VotesRevealedPayload{
		StoryID:             storyID,
		Votes:               revealed,
		Distribution:        result.Distribution,
		ConsensusPercentage: result.ConsensusPercentage,
		AverageVote:         result.AverageVote,
	})

	a.presence.ResetStatuses(sessionID, models.StatusIdle)
	a.broadcastStats(sessionID)

	log.Info().
		Str("session_id", sessionID.String()).
		Str("story_id", storyID.String()).
		Int("consensus", result.ConsensusPercentage).
		Int("votes", result.CountedVotes).
		Msg("votes revealed")

	return a.copyRound(r), nil
}

// Revote clears the table and re-enters Voting for the same story under a
// freshly minted round, preserving the revealed round's history. Facilitator
// only; legal only after a reveal.
func (a *App) Revote(ctx context.Context, sessionID, storyID uuid.UUID, requester uuid.UUID) (*models.VotingRound, error) {
	l := a.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	if _, err := a.authorize(ctx, sessionID, requester); err != nil {
		return nil, err
	}

	prev, ok := a.rounds[sessionID]
	if !ok || prev.StoryID != storyID {
		return nil, fmt.Errorf("%w: no voting round for story %s", ErrNotFound, storyID)
	}
	if prev.State != models.RoundStateRevealed {
		return nil, fmt.Errorf("%w: revote requires a revealed round, got %s", ErrInvalidState, prev.State)
	}

	a.timers.Cancel(sessionID)
	a.ledger.Clear(prev.ID)

	r := &models.VotingRound{
		ID:            uuid.New(),
		SessionID:     sessionID,
		StoryID:       storyID,
		State:         models.RoundStateVoting,
		TimerDuration: prev.TimerDuration,
		StartedAt:     a.clock.Now(),
	}
	a.rounds[sessionID] = r

	a.presence.ResetStatuses(sessionID, models.StatusVoting)
	a.timers.Start(sessionID, storyID, r.TimerDuration)

	a.broadcast.ToSession(sessionID, EventVotesCleared, VotesClearedPayload{StoryID: storyID})
	a.broadcast.ToSession(sessionID, EventRevoteStarted, VotingStartedPayload{
		RoundID:  r.ID,
		StoryID:  storyID,
		Duration: r.TimerDuration,
	})
	a.broadcastStats(sessionID)

	log.Info().
		Str("session_id", sessionID.String()).
		Str("story_id", storyID.String()).
		Str("round_id", r.ID.String()).
		Msg("revote started")

	return a.copyRound(r), nil
}

// Finalize records a permanent score for the story via the story
// collaborator and closes the revealed round. Facilitator only.
func (a *App) Finalize(ctx context.Context, sessionID, storyID uuid.UUID, finalScore float64, requester uuid.UUID) error {
	l := a.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	if _, err := a.authorize(ctx, sessionID, requester); err != nil {
		return err
	}

	if a.stories != nil {
		if _, err := a.stories.FinalizeScore(ctx, storyID, finalScore); err != nil {
			return fmt.Errorf("failed to finalize story score: %w", err)
		}
	}

	if r, ok := a.rounds[sessionID]; ok && r.StoryID == storyID && r.State == models.RoundStateRevealed {
		r.State = models.RoundStateFinalized
	}

	a.broadcast.ToSession(sessionID, EventStoryFinalized, StoryFinalizedPayload{StoryID: storyID, FinalScore: finalScore})

	if a.publisher != nil {
		if err := a.publisher.PublishStoryFinalized(ctx, sessionID, storyID, finalScore); err != nil {
			log.Warn().Err(err).Str("story_id", storyID.String()).Msg("failed to publish story finalized event")
		}
	}

	return nil
}

// CurrentRound returns a copy of the session's current round, if any.
func (a *App) CurrentRound(sessionID uuid.UUID) (*models.VotingRound, bool) {
	l := a.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	r, ok := a.rounds[sessionID]
	if !ok {
		return nil, false
	}
	return a.copyRound(r), true
}

// OnTimerTick relays the shared countdown to the session room. Ticks are
// read-only and bypass the session lock.
func (a *App) OnTimerTick(sessionID, storyID uuid.UUID, timeLeft, duration int, urgency votetimer.Urgency) {
	a.broadcast.ToSession(sessionID, EventTimerUpdate, TimerUpdatePayload{
		StoryID:  storyID,
		TimeLeft: timeLeft,
		Duration: duration,
		Urgency:  urgency,
	})
}

// OnTimerExpired re-enters the state machine when the countdown hits zero.
// The round stops accepting votes but is not revealed; facilitators decide.
func (a *App) OnTimerExpired(sessionID, storyID uuid.UUID) {
	l := a.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	r, ok := a.rounds[sessionID]
	if !ok || r.StoryID != storyID || r.State != models.RoundStateVoting || !r.Open() {
		return
	}

	now := a.clock.Now()
	r.EndedAt = &now
	r.EndReason = models.EndReasonTimerExpired

	a.broadcast.ToSession(sessionID, EventVotingEnded, VotingEndedPayload{StoryID: storyID, Reason: models.EndReasonTimerExpired})
	a.broadcast.ToFacilitators(sessionID, EventTimerExpired, TimerExpiredPayload{SessionID: sessionID, StoryID: storyID})

	log.Info().
		Str("session_id", sessionID.String()).
		Str("story_id", storyID.String()).
		Msg("voting timer expired; awaiting facilitator reveal")
}

// authorize resolves the session and checks the requester is its
// facilitator.
func (a *App) authorize(ctx context.Context, sessionID, requester uuid.UUID) (*models.Session, error) {
	sess, err := a.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if sess.FacilitatorID != requester {
		return nil, ErrForbidden
	}
	return sess, nil
}

// allOnlineVoted reports whether every currently online participant has a
// ledger entry for the round. Offline participants do not count toward the
// denominator.
func (a *App) allOnlineVoted(sessionID, roundID uuid.UUID) bool {
	online := a.presence.Online(sessionID)
	if len(online) == 0 {
		return false
	}
	for _, p := range online {
		if !a.ledger.HasVoted(roundID, p.UserID) {
			return false
		}
	}
	return true
}

// broadcastStats publishes the round progress summary derived from the
// online participant set.
func (a *App) broadcastStats(sessionID uuid.UUID) {
	online := a.presence.Online(sessionID)

	var voted, voting, idle int
	for _, p := range online {
		switch p.Status {
		case models.StatusVoted:
			voted++
		case models.StatusVoting:
			voting++
		default:
			idle++
		}
	}

	pct := 0
	if len(online) > 0 {
		pct = int(float64(voted)/float64(len(online))*100 + 0.5)
	}

	a.broadcast.ToSession(sessionID, EventParticipantStats, ParticipantStatsPayload{
		Total:       len(online),
		Voted:       voted,
		StillVoting: voting,
		Idle:        idle,
		Percentage:  pct,
	})
}

// persistReveal writes the snapshot and outcome with bounded retry.
func (a *App) persistReveal(ctx context.Context, r *models.VotingRound, votes []models.Vote) error {
	var lastErr error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if attempt > 1 && a.retryDelay > 0 {
			time.Sleep(a.retryDelay * time.Duration(attempt-1))
		}

		if err := a.store.SaveVotes(ctx, votes); err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Str("round_id", r.ID.String()).Msg("failed to persist votes, retrying")
			continue
		}
		if err := a.store.SaveRoundOutcome(ctx, r); err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Str("round_id", r.ID.String()).Msg("failed to persist round outcome, retrying")
			continue
		}
		return nil
	}
	return fmt.Errorf("persistence failed after %d attempts: %w", persistAttempts, lastErr)
}

func (a *App) copyRound(r *models.VotingRound) *models.VotingRound {
	cp := *r
	return &cp
}
