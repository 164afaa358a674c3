// Package events publishes round outcomes to a JetStream stream for
// downstream consumers (reporting, integrations). Publishing is
// best-effort from the coordinator's point of view.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pointdeck/internal/models"
	"github.com/mcdev12/pointdeck/internal/stats"
)

// Event types emitted on the outcome stream.
const (
	TypeRoundRevealed  = "round_revealed"
	TypeStoryFinalized = "story_finalized"
)

// JetStreamConfig holds connection and stream settings.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration
	MaxMsgs       int64
	Replicas      int
	// DuplicateWindow bounds dedupe by event ID.
	DuplicateWindow time.Duration
}

// DefaultJetStreamConfig returns settings suitable for a single-node
// deployment.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "ROUND_EVENTS",
		SubjectPrefix:   "round.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          7 * 24 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
	}
}

// JetStreamPublisher writes outcome events to NATS JetStream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

// NewJetStreamPublisher connects to NATS and ensures the outcome stream
// exists.
func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, config: cfg}

	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return p, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Round outcome event stream",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		MaxMsgs:     p.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    p.config.Replicas,
		Duplicates:  p.config.DuplicateWindow,
	}

	stream, err := p.js.Stream(ctx, p.config.StreamName)
	if err != nil {
		if _, err = p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = p.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

// RoundRevealedEvent is the payload published when votes are disclosed.
type RoundRevealedEvent struct {
	RoundID             uuid.UUID      `json:"roundId"`
	SessionID           uuid.UUID      `json:"sessionId"`
	StoryID             uuid.UUID      `json:"storyId"`
	EndReason           string         `json:"endReason"`
	Distribution        map[string]int `json:"distribution"`
	ConsensusPercentage int            `json:"consensusPercentage"`
	AverageVote         *float64       `json:"averageVote,omitempty"`
	CountedVotes        int            `json:"countedVotes"`
}

// StoryFinalizedEvent is the payload published when a score is recorded.
type StoryFinalizedEvent struct {
	SessionID  uuid.UUID `json:"sessionId"`
	StoryID    uuid.UUID `json:"storyId"`
	FinalScore float64   `json:"finalScore"`
}

// PublishRoundRevealed emits a reveal outcome. Implements the coordinator's
// outcome publisher.
func (p *JetStreamPublisher) PublishRoundRevealed(ctx context.Context, round *models.VotingRound, result stats.Result) error {
	return p.publish(ctx, TypeRoundRevealed, round.SessionID, RoundRevealedEvent{
		RoundID:             round.ID,
		SessionID:           round.SessionID,
		StoryID:             round.StoryID,
		EndReason:           string(round.EndReason),
		Distribution:        result.Distribution,
		ConsensusPercentage: result.ConsensusPercentage,
		AverageVote:         result.AverageVote,
		CountedVotes:        result.CountedVotes,
	})
}

// PublishStoryFinalized emits a finalized score.
func (p *JetStreamPublisher) PublishStoryFinalized(ctx context.Context, sessionID, storyID uuid.UUID, finalScore float64) error {
	return p.publish(ctx, TypeStoryFinalized, sessionID, StoryFinalizedEvent{
		SessionID:  sessionID,
		StoryID:    storyID,
		FinalScore: finalScore,
	})
}

func (p *JetStreamPublisher) publish(ctx context.Context, eventType string, sessionID uuid.UUID, payload interface{}) error {
	eventID := uuid.New()
	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, eventType)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	env := map[string]interface{}{
		"eventId":   eventID.String(),
		"eventType": eventType,
		"sessionId": sessionID.String(),
		"timestamp": time.Now().UTC(),
		"payload":   json.RawMessage(body),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{eventType},
			"Session-ID": []string{sessionID.String()},
			"Event-ID":   []string{eventID.String()},
		},
	},
		jetstream.WithMsgID(eventID.String()),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Info().
		Str("subject", subject).
		Str("event_id", eventID.String()).
		Uint64("sequence", ack.Sequence).
		Str("stream", ack.Stream).
		Msg("published to JetStream")

	return nil
}

// Close drains the NATS connection.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}

// MockPublisher logs outcomes without a broker. Used in development and
// when NATS is not configured.
type MockPublisher struct{}

// NewMockPublisher creates a no-broker publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (p *MockPublisher) PublishRoundRevealed(ctx context.Context, round *models.VotingRound, result stats.Result) error {
	log.Info().
		Str("round_id", round.ID.String()).
		Str("session_id", round.SessionID.String()).
		Int("consensus", result.ConsensusPercentage).
		Msg("round revealed (mock publisher)")
	return nil
}

func (p *MockPublisher) PublishStoryFinalized(ctx context.Context, sessionID, storyID uuid.UUID, finalScore float64) error {
	log.Info().
		Str("session_id", sessionID.String()).
		Str("story_id", storyID.String()).
		Float64("final_score", finalScore).
		Msg("story finalized (mock publisher)")
	return nil
}
