package votetimer

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type tick struct {
	sessionID uuid.UUID
	storyID   uuid.UUID
	timeLeft  int
	duration  int
	urgency   Urgency
}

// recorder delivers callbacks over channels so tests can synchronize with
// the scheduler goroutine between fake-clock advances.
type recorder struct {
	ticks   chan tick
	expired chan uuid.UUID
}

func newRecorder() *recorder {
	return &recorder{
		ticks:   make(chan tick, 64),
		expired: make(chan uuid.UUID, 8),
	}
}

func (r *recorder) OnTimerTick(sessionID, storyID uuid.UUID, timeLeft, duration int, urgency Urgency) {
	r.ticks <- tick{sessionID, storyID, timeLeft, duration, urgency}
}

func (r *recorder) OnTimerExpired(sessionID, storyID uuid.UUID) {
	r.expired <- sessionID
}

func (r *recorder) nextTick(t *testing.T) tick {
	t.Helper()
	select {
	case tk := <-r.ticks:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
		return tick{}
	}
}

func (r *recorder) expectNoExpiry(t *testing.T) {
	t.Helper()
	select {
	case <-r.expired:
		t.Fatal("unexpected expiry event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCountdownTicksAndSingleExpiry(t *testing.T) {
	clk := clockwork.NewFakeClock()
	rec := newRecorder()
	s := NewSchedulerWithClock(rec, clk)

	session, story := uuid.New(), uuid.New()
	s.Start(session, story, 5)
	clk.BlockUntil(1)

	want := []int{4, 3, 2, 1, 0}
	for _, remaining := range want {
		clk.Advance(time.Second)
		tk := rec.nextTick(t)
		if tk.timeLeft != remaining {
			t.Fatalf("tick timeLeft = %d, want %d", tk.timeLeft, remaining)
		}
		if tk.duration != 5 || tk.sessionID != session || tk.storyID != story {
			t.Fatalf("unexpected tick metadata: %+v", tk)
		}
	}

	select {
	case sid := <-rec.expired:
		if sid != session {
			t.Fatalf("expired for session %s, want %s", sid, session)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for expiry")
	}

	// The timer is deactivated: further advances produce nothing.
	clk.Advance(3 * time.Second)
	rec.expectNoExpiry(t)
	if _, ok := s.Active(session); ok {
		t.Fatal("timer should be deactivated after expiry")
	}
}

func TestUrgencyLevels(t *testing.T) {
	cases := []struct {
		remaining int
		want      Urgency
	}{
		{90, UrgencyNormal},
		{61, UrgencyNormal},
		{60, UrgencyWarning},
		{31, UrgencyWarning},
		{30, UrgencyCritical},
		{1, UrgencyCritical},
		{0, UrgencyExpired},
	}
	for _, c := range cases {
		if got := UrgencyFor(c.remaining); got != c.want {
			t.Fatalf("UrgencyFor(%d) = %s, want %s", c.remaining, got, c.want)
		}
	}
}

func TestCancelStopsWithoutExpiry(t *testing.T) {
	clk := clockwork.NewFakeClock()
	rec := newRecorder()
	s := NewSchedulerWithClock(rec, clk)

	session := uuid.New()
	s.Start(session, uuid.New(), 10)
	clk.BlockUntil(1)

	clk.Advance(time.Second)
	rec.nextTick(t)

	s.Cancel(session)
	if _, ok := s.Active(session); ok {
		t.Fatal("cancelled timer should not be active")
	}

	clk.Advance(15 * time.Second)
	rec.expectNoExpiry(t)

	// Cancel is idempotent.
	s.Cancel(session)
}

func TestStartReplacesExistingTimer(t *testing.T) {
	clk := clockwork.NewFakeClock()
	rec := newRecorder()
	s := NewSchedulerWithClock(rec, clk)

	session := uuid.New()
	first, second := uuid.New(), uuid.New()

	s.Start(session, first, 100)
	clk.BlockUntil(1)
	s.Start(session, second, 2)
	clk.BlockUntil(1)

	info, ok := s.Active(session)
	if !ok || info.StoryID != second {
		t.Fatalf("active timer story = %+v, want replacement %s", info, second)
	}

	// Only the replacement's expiry fires.
	clk.Advance(2 * time.Second)
	select {
	case <-rec.expired:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for replacement expiry")
	}
	rec.expectNoExpiry(t)
}

func TestCancelRacingExpiryFiresAtMostOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		clk := clockwork.NewFakeClock()
		rec := newRecorder()
		s := NewSchedulerWithClock(rec, clk)

		session := uuid.New()
		s.Start(session, uuid.New(), 1)
		clk.BlockUntil(1)

		done := make(chan struct{})
		go func() {
			s.Cancel(session)
			close(done)
		}()
		clk.Advance(time.Second)
		<-done

		fired := 0
	drain:
		for {
			select {
			case <-rec.expired:
				fired++
			case <-time.After(50 * time.Millisecond):
				break drain
			}
		}
		if fired > 1 {
			t.Fatalf("expiry fired %d times, want at most once", fired)
		}
	}
}

func TestSessionsRunIndependentTimers(t *testing.T) {
	clk := clockwork.NewFakeClock()
	rec := newRecorder()
	s := NewSchedulerWithClock(rec, clk)

	s1, s2 := uuid.New(), uuid.New()
	s.Start(s1, uuid.New(), 1)
	s.Start(s2, uuid.New(), 5)
	clk.BlockUntil(2)

	clk.Advance(time.Second)

	expiries := map[uuid.UUID]int{}
	timeout := time.After(2 * time.Second)
	for len(expiries) == 0 {
		select {
		case sid := <-rec.expired:
			expiries[sid]++
		case <-timeout:
			t.Fatal("timed out waiting for first expiry")
		}
	}
	if expiries[s2] != 0 {
		t.Fatal("long timer expired with the short one")
	}
	if _, ok := s.Active(s2); !ok {
		t.Fatal("second session's timer should still be running")
	}
}
