package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mcdev12/pointdeck/internal/models"
	"github.com/mcdev12/pointdeck/internal/round"
)

type fakeVerifier struct {
	users map[string]uuid.UUID
}

func (v *fakeVerifier) Verify(token string) (uuid.UUID, error) {
	id, ok := v.users[token]
	if !ok {
		return uuid.Nil, errors.New("unknown token")
	}
	return id, nil
}

type coordCall struct {
	op        string
	sessionID uuid.UUID
	storyID   uuid.UUID
	userID    uuid.UUID
	value     string
}

type fakeCoordinator struct {
	mu    sync.Mutex
	calls []coordCall

	joinRole models.ParticipantRole
	joinErr  error
	voteErr  error
}

func (c *fakeCoordinator) record(call coordCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *fakeCoordinator) setJoinRole(role models.ParticipantRole) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joinRole = role
}

func (c *fakeCoordinator) setVoteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voteErr = err
}

func (c *fakeCoordinator) callsFor(op string) []coordCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []coordCall
	for _, call := range c.calls {
		if call.op == op {
			out = append(out, call)
		}
	}
	return out
}

func (c *fakeCoordinator) Join(ctx context.Context, sessionID, userID uuid.UUID) (models.Participant, error) {
	c.record(coordCall{op: "join", sessionID: sessionID, userID: userID})
	c.mu.Lock()
	joinErr, role := c.joinErr, c.joinRole
	c.mu.Unlock()
	if joinErr != nil {
		return models.Participant{}, joinErr
	}
	if role == "" {
		role = models.RoleParticipant
	}
	return models.Participant{SessionID: sessionID, UserID: userID, Role: role}, nil
}

func (c *fakeCoordinator) Leave(sessionID, userID uuid.UUID) {
	c.record(coordCall{op: "leave", sessionID: sessionID, userID: userID})
}

func (c *fakeCoordinator) StartRound(ctx context.Context, sessionID, storyID uuid.UUID, duration int, requester uuid.UUID) (*models.VotingRound, error) {
	c.record(coordCall{op: "start", sessionID: sessionID, storyID: storyID, userID: requester})
	return &models.VotingRound{ID: uuid.New(), SessionID: sessionID, StoryID: storyID}, nil
}

func (c *fakeCoordinator) SubmitVote(ctx context.Context, sessionID, storyID, userID uuid.UUID, value string) error {
	c.record(coordCall{op: "vote", sessionID: sessionID, storyID: storyID, userID: userID, value: value})
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voteErr
}

func (c *fakeCoordinator) EndEarly(ctx context.Context, sessionID, storyID uuid.UUID, requester uuid.UUID) error {
	c.record(coordCall{op: "end_early", sessionID: sessionID, storyID: storyID, userID: requester})
	return nil
}

func (c *fakeCoordinator) Reveal(ctx context.Context, sessionID, storyID uuid.UUID, requester uuid.UUID) (*models.VotingRound, error) {
	c.record(coordCall{op: "reveal", sessionID: sessionID, storyID: storyID, userID: requester})
	return nil, nil
}

func (c *fakeCoordinator) Revote(ctx context.Context, sessionID, storyID uuid.UUID, requester uuid.UUID) (*models.VotingRound, error) {
	c.record(coordCall{op: "revote", sessionID: sessionID, storyID: storyID, userID: requester})
	return nil, nil
}

func (c *fakeCoordinator) Finalize(ctx context.Context, sessionID, storyID uuid.UUID, finalScore float64, requester uuid.UUID) error {
	c.record(coordCall{op: "finalize", sessionID: sessionID, storyID: storyID, userID: requester})
	return nil
}

type gatewayFixture struct {
	manager *Manager
	coord   *fakeCoordinator
	server  *httptest.Server
	cancel  context.CancelFunc
}

func newGatewayFixture(t *testing.T, users map[string]uuid.UUID) *gatewayFixture {
	t.Helper()

	coord := &fakeCoordinator{}
	manager := NewManager(DefaultConnectionConfig())
	handler := NewHandler(manager, coord, &fakeVerifier{users: users})

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	server := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	return &gatewayFixture{manager: manager, coord: coord, server: server, cancel: cancel}
}

func (f *gatewayFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendFrame(t *testing.T, ws *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, _ := json.Marshal(ClientMessage{Type: msgType, Data: data})
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readEvent(t *testing.T, ws *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var evt struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return evt.Event, evt.Data
}

func waitForRoom(t *testing.T, f *gatewayFixture, sessionID uuid.UUID, size int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stats := f.manager.Stats()
		per := stats["session_connections"].(map[string]int)
		if per[sessionID.String()] >= size {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s never reached %d connections", sessionID, size)
}

func TestRejectsUpgradeWithoutValidToken(t *testing.T) {
	f := newGatewayFixture(t, map[string]uuid.UUID{"good": uuid.New()})

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?token=bad"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial with bad token succeeded, want rejection")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("status = %v, want 401", resp)
	}
}

func TestJoinThenBroadcastReachesMember(t *testing.T) {
	userID := uuid.New()
	sessionID := uuid.New()
	f := newGatewayFixture(t, map[string]uuid.UUID{"tok": userID})

	ws := f.dial(t, "tok")
	sendFrame(t, ws, MsgJoinSession, JoinSessionPayload{SessionID: sessionID})
	waitForRoom(t, f, sessionID, 1)

	f.manager.ToSession(sessionID, round.EventVotingStarted, map[string]string{"storyId": "s1"})

	event, _ := readEvent(t, ws)
	if event != round.EventVotingStarted {
		t.Fatalf("event = %q, want %q", event, round.EventVotingStarted)
	}

	joins := f.coord.callsFor("join")
	if len(joins) != 1 || joins[0].userID != userID || joins[0].sessionID != sessionID {
		t.Fatalf("join calls = %+v", joins)
	}
}

func TestVoteDispatchedToCoordinator(t *testing.T) {
	userID := uuid.New()
	sessionID := uuid.New()
	storyID := uuid.New()
	f := newGatewayFixture(t, map[string]uuid.UUID{"tok": userID})

	ws := f.dial(t, "tok")
	sendFrame(t, ws, MsgJoinSession, JoinSessionPayload{SessionID: sessionID})
	waitForRoom(t, f, sessionID, 1)

	sendFrame(t, ws, MsgVoteSubmit, VoteSubmitPayload{SessionID: sessionID, StoryID: storyID, Value: "13"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if votes := f.coord.callsFor("vote"); len(votes) == 1 {
			if votes[0].value != "13" || votes[0].userID != userID {
				t.Fatalf("vote call = %+v", votes[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("coordinator never received the vote")
}

func TestErrorGoesToOffenderOnly(t *testing.T) {
	facilitator := uuid.New()
	voter := uuid.New()
	sessionID := uuid.New()
	f := newGatewayFixture(t, map[string]uuid.UUID{"ftok": facilitator, "vtok": voter})
	f.coord.setVoteErr(round.ErrRoundClosed)

	fws := f.dial(t, "ftok")
	sendFrame(t, fws, MsgJoinSession, JoinSessionPayload{SessionID: sessionID})
	waitForRoom(t, f, sessionID, 1)

	vws := f.dial(t, "vtok")
	sendFrame(t, vws, MsgJoinSession, JoinSessionPayload{SessionID: sessionID})
	waitForRoom(t, f, sessionID, 2)

	sendFrame(t, vws, MsgVoteSubmit, VoteSubmitPayload{SessionID: sessionID, StoryID: uuid.New(), Value: "5"})

	event, data := readEvent(t, vws)
	if event != round.EventError {
		t.Fatalf("offender event = %q, want %q", event, round.EventError)
	}
	var errPayload ErrorPayload
	if err := json.Unmarshal(data, &errPayload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if errPayload.Code != "round_closed" {
		t.Errorf("error code = %q, want %q", errPayload.Code, "round_closed")
	}

	// The facilitator must not have seen the error. Broadcast a room event
	// and confirm it is the facilitator's first frame.
	f.manager.ToSession(sessionID, round.EventVotingEnded, nil)
	if event, _ := readEvent(t, fws); event != round.EventVotingEnded {
		t.Fatalf("facilitator first event = %q, want %q", event, round.EventVotingEnded)
	}
}

func TestFacilitatorOnlyDelivery(t *testing.T) {
	facilitator := uuid.New()
	voter := uuid.New()
	sessionID := uuid.New()
	f := newGatewayFixture(t, map[string]uuid.UUID{"ftok": facilitator, "vtok": voter})

	f.coord.setJoinRole(models.RoleFacilitator)
	fws := f.dial(t, "ftok")
	sendFrame(t, fws, MsgJoinSession, JoinSessionPayload{SessionID: sessionID})
	waitForRoom(t, f, sessionID, 1)

	f.coord.setJoinRole(models.RoleParticipant)
	vws := f.dial(t, "vtok")
	sendFrame(t, vws, MsgJoinSession, JoinSessionPayload{SessionID: sessionID})
	waitForRoom(t, f, sessionID, 2)

	f.manager.ToFacilitators(sessionID, round.EventRevealReady, nil)
	f.manager.ToSession(sessionID, round.EventVotingEnded, nil)

	// Facilitator sees both, in commit order.
	if event, _ := readEvent(t, fws); event != round.EventRevealReady {
		t.Fatalf("facilitator first event = %q, want %q", event, round.EventRevealReady)
	}
	if event, _ := readEvent(t, fws); event != round.EventVotingEnded {
		t.Fatalf("facilitator second event = %q, want %q", event, round.EventVotingEnded)
	}

	// Participant skips the facilitator-only event.
	if event, _ := readEvent(t, vws); event != round.EventVotingEnded {
		t.Fatalf("participant first event = %q, want %q", event, round.EventVotingEnded)
	}
}

func TestCommandBeforeJoinRejected(t *testing.T) {
	userID := uuid.New()
	f := newGatewayFixture(t, map[string]uuid.UUID{"tok": userID})

	ws := f.dial(t, "tok")
	sendFrame(t, ws, MsgVoteSubmit, VoteSubmitPayload{SessionID: uuid.New(), StoryID: uuid.New(), Value: "3"})

	event, data := readEvent(t, ws)
	if event != round.EventError {
		t.Fatalf("event = %q, want %q", event, round.EventError)
	}
	var errPayload ErrorPayload
	if err := json.Unmarshal(data, &errPayload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if errPayload.Code != "not_joined" {
		t.Errorf("error code = %q, want %q", errPayload.Code, "not_joined")
	}
	if votes := f.coord.callsFor("vote"); len(votes) != 0 {
		t.Errorf("coordinator received %d votes, want 0", len(votes))
	}
}

func TestDisconnectMarksOffline(t *testing.T) {
	userID := uuid.New()
	sessionID := uuid.New()
	f := newGatewayFixture(t, map[string]uuid.UUID{"tok": userID})

	ws := f.dial(t, "tok")
	sendFrame(t, ws, MsgJoinSession, JoinSessionPayload{SessionID: sessionID})
	waitForRoom(t, f, sessionID, 1)

	ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		leaves := f.coord.callsFor("leave")
		if len(leaves) == 1 {
			if leaves[0].sessionID != sessionID || leaves[0].userID != userID {
				t.Fatalf("leave call = %+v", leaves[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("disconnect never reached the coordinator")
}

func TestSlowConsumerEvicted(t *testing.T) {
	userID := uuid.New()
	sessionID := uuid.New()
	f := newGatewayFixture(t, map[string]uuid.UUID{"tok": userID})

	ws := f.dial(t, "tok")
	sendFrame(t, ws, MsgJoinSession, JoinSessionPayload{SessionID: sessionID})
	waitForRoom(t, f, sessionID, 1)

	// Never read from the client; flood with payloads large enough that
	// socket buffers cannot absorb them, until the send buffer overflows.
	padding := strings.Repeat("x", 2048)
	deadlineFlood := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadlineFlood) {
		if f.manager.Stats()["total_connections"].(int) == 0 {
			break
		}
		f.manager.ToSession(sessionID, round.EventTimerUpdate, map[string]string{"pad": padding})
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		stats := f.manager.Stats()
		if stats["total_connections"].(int) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("slow consumer was never evicted")
}
