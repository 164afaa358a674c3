// Package votetimer owns the shared countdown for voting rounds. Each
// session has at most one active timer; starting a new one always replaces
// the old, and a timer fires its terminal expiry at most once even when a
// cancellation races the final tick.
package votetimer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Urgency is derived server-side so clients can render escalating feedback
// without per-client timing logic.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
	UrgencyExpired  Urgency = "expired"
)

// UrgencyFor maps seconds remaining to an urgency level.
func UrgencyFor(remaining int) Urgency {
	switch {
	case remaining <= 0:
		return UrgencyExpired
	case remaining <= 30:
		return UrgencyCritical
	case remaining <= 60:
		return UrgencyWarning
	default:
		return UrgencyNormal
	}
}

// Events receives timer callbacks. Implementations must be safe for
// concurrent use; ticks for different sessions arrive on different
// goroutines.
type Events interface {
	OnTimerTick(sessionID, storyID uuid.UUID, timeLeft, duration int, urgency Urgency)
	OnTimerExpired(sessionID, storyID uuid.UUID)
}

// Info describes a session's active timer.
type Info struct {
	StoryID   uuid.UUID
	Duration  int
	StartedAt time.Time
}

type instance struct {
	sessionID uuid.UUID
	storyID   uuid.UUID
	duration  int
	remaining int
	startedAt time.Time
	stop      chan struct{}
}

// Scheduler runs at most one countdown per session, ticking once per second.
type Scheduler struct {
	clock clockwork.Clock
	sink  Events

	mu     sync.Mutex
	active map[uuid.UUID]*instance
}

// NewScheduler creates a scheduler with the real clock.
func NewScheduler(sink Events) *Scheduler {
	return NewSchedulerWithClock(sink, clockwork.NewRealClock())
}

// NewSchedulerWithClock creates a scheduler with an injected clock. Tests
// use clockwork.NewFakeClock().
func NewSchedulerWithClock(sink Events, clock clockwork.Clock) *Scheduler {
	return &Scheduler{
		clock:  clock,
		sink:   sink,
		active: make(map[uuid.UUID]*instance),
	}
}

// Start begins a countdown of duration seconds for the session's story,
// cancelling and replacing any timer already running for that session.
func (s *Scheduler) Start(sessionID, storyID uuid.UUID, duration int) {
	inst := &instance{
		sessionID: sessionID,
		storyID:   storyID,
		duration:  duration,
		remaining: duration,
		startedAt: s.clock.Now(),
		stop:      make(chan struct{}),
	}

	s.mu.Lock()
	if old, ok := s.active[sessionID]; ok {
		close(old.stop)
	}
	s.active[sessionID] = inst
	s.mu.Unlock()

	log.Debug().
		Str("session_id", sessionID.String()).
		Str("story_id", storyID.String()).
		Int("duration", duration).
		Msg("voting timer started")

	go s.run(inst)
}

// Cancel stops the session's timer without firing expiry. Idempotent.
func (s *Scheduler) Cancel(sessionID uuid.UUID) {
	s.mu.Lock()
	inst, ok := s.active[sessionID]
	if ok {
		delete(s.active, sessionID)
		close(inst.stop)
	}
	s.mu.Unlock()

	if ok {
		log.Debug().Str("session_id", inst.sessionID.String()).Msg("voting timer cancelled")
	}
}

// Active returns the session's running timer, if any.
func (s *Scheduler) Active(sessionID uuid.UUID) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.active[sessionID]
	if !ok {
		return Info{}, false
	}
	return Info{StoryID: inst.storyID, Duration: inst.duration, StartedAt: inst.startedAt}, true
}

// claimTerminal removes inst from the active map if it is still the
// registered timer for its session. Exactly one of claimTerminal and Cancel
// wins, which is what guarantees a single expiry per timer instance.
func (s *Scheduler) claimTerminal(inst *instance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active[inst.sessionID] != inst {
		return false
	}
	delete(s.active, inst.sessionID)
	return true
}

func (s *Scheduler) run(inst *instance) {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-inst.stop:
			return
		case <-ticker.Chan():
			inst.remaining--
			if inst.remaining > 0 {
				s.sink.OnTimerTick(inst.sessionID, inst.storyID, inst.remaining, inst.duration, UrgencyFor(inst.remaining))
				continue
			}

			if s.claimTerminal(inst) {
				s.sink.OnTimerTick(inst.sessionID, inst.storyID, 0, inst.duration, UrgencyExpired)
				s.sink.OnTimerExpired(inst.sessionID, inst.storyID)
				log.Debug().
					Str("session_id", inst.sessionID.String()).
					Str("story_id", inst.storyID.String()).
					Msg("voting timer expired")
			}
			return
		}
	}
}
