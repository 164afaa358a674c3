package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pointdeck/internal/analytics"
	"github.com/mcdev12/pointdeck/internal/auth"
	"github.com/mcdev12/pointdeck/internal/deck"
	"github.com/mcdev12/pointdeck/internal/events"
	"github.com/mcdev12/pointdeck/internal/gateway"
	"github.com/mcdev12/pointdeck/internal/round"
	"github.com/mcdev12/pointdeck/internal/sessions"
	"github.com/mcdev12/pointdeck/internal/stories"
	"github.com/mcdev12/pointdeck/internal/store"
)

// Services holds every wired component of the process.
type Services struct {
	Auth      *auth.Service
	Sessions  *sessions.Service
	Stories   *stories.Service
	Analytics *analytics.Service
	Manager   *gateway.Manager
	Gateway   *gateway.Handler
	Publisher round.OutcomePublisher
}

func setupServices(database *sql.DB, config *Config) (*Services, error) {
	// Database layer → Repository layer → App layer → Service layer

	decks := deck.NewRegistry()
	if config.Decks.File != "" {
		if err := decks.LoadFile(config.Decks.File); err != nil {
			return nil, fmt.Errorf("failed to load deck file: %w", err)
		}
	}

	authSvc, err := auth.NewService(os.Getenv("AUTH_SECRET"), config.Auth.Issuer, config.tokenTTL())
	if err != nil {
		return nil, err
	}

	// Sessions
	sessionsRepo := sessions.NewRepository(database)
	sessionsApp := sessions.NewApp(sessionsRepo, decks)
	sessionsService := sessions.NewService(sessionsApp)

	// Stories
	storiesRepo := stories.NewRepository(database)
	storiesApp := stories.NewApp(storiesRepo)
	storiesService := stories.NewService(storiesApp)

	// Votes and rounds
	voteRepo := store.NewVoteRepository(database)

	// Outcome publisher
	var publisher round.OutcomePublisher
	if config.NATS.Enabled {
		cfg := events.DefaultJetStreamConfig()
		if url := getEnv("NATS_URL", config.NATS.URL); url != "" {
			cfg.URL = url
		}
		js, err := events.NewJetStreamPublisher(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to set up NATS publisher: %w", err)
		}
		publisher = js
	} else {
		log.Info().Msg("NATS disabled, using mock outcome publisher")
		publisher = events.NewMockPublisher()
	}

	// Gateway carries broadcasts for the coordinator.
	manager := gateway.NewManager(gateway.DefaultConnectionConfig())

	// Round coordinator
	coordinator := round.NewApp(round.Config{
		Sessions:     sessionsApp,
		Store:        voteRepo,
		Broadcast:    manager,
		Publisher:    publisher,
		Stories:      storiesApp,
		Decks:        decks,
		Participants: sessionsApp,
	})

	gatewayHandler := gateway.NewHandler(manager, coordinator, authSvc)

	// Analytics
	analyticsService := analytics.NewService(storiesApp, voteRepo)

	return &Services{
		Auth:      authSvc,
		Sessions:  sessionsService,
		Stories:   storiesService,
		Analytics: analyticsService,
		Manager:   manager,
		Gateway:   gatewayHandler,
		Publisher: publisher,
	}, nil
}
