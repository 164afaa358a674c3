package round

import (
	"errors"
	"fmt"
)

// Sentinel errors for round lifecycle failures. All are recoverable: they
// are reported to the offending connection and leave shared state untouched.
var (
	// ErrForbidden is returned when a non-facilitator attempts a
	// facilitator-only transition.
	ErrForbidden = errors.New("forbidden: facilitator only")

	// ErrInvalidState is returned when a transition is attempted outside
	// its legal source state.
	ErrInvalidState = errors.New("invalid round state")

	// ErrTimerActive is the InvalidState case of revealing while the
	// countdown still has time remaining.
	ErrTimerActive = fmt.Errorf("%w: timer still active", ErrInvalidState)

	// ErrRoundClosed is returned when a vote arrives after reveal or
	// finalize.
	ErrRoundClosed = errors.New("round closed")

	// ErrNotFound is returned for operations on an unknown session, story
	// or round.
	ErrNotFound = errors.New("not found")

	// ErrInvalidVote is returned when a submitted value is not a card in
	// the session's deck.
	ErrInvalidVote = errors.New("value is not in the session deck")
)
