package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/solowsim/go/clients/econ_model_client"
	"github.com/mcdev12/solowsim/go/internal/archive"
	"github.com/mcdev12/solowsim/go/internal/game"
	"github.com/mcdev12/solowsim/go/internal/game/broadcast"
	"github.com/mcdev12/solowsim/go/internal/gateway"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Engine      *econ_model_client.EconModelClient
	Broadcaster *broadcast.Broadcaster
	Relay       *broadcast.JetStreamRelay
	Archive     *archive.Archive
	Coordinator *game.Coordinator
	Gateway     *gateway.Service
}

func setupServices(ctx context.Context, config *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Engine client → sinks → Coordinator → Gateway
	services := &Services{
		Engine: econ_model_client.NewEconModelClient(config.Engine.URL, config.Engine.Timeout),
		Broadcaster: broadcast.New(broadcast.Config{
			QueueSize:        config.Broadcast.QueueSize,
			SubscriberBuffer: config.Broadcast.SubscriberBuffer,
		}),
	}

	if config.Engine.InitOnStart {
		initCtx, cancel := context.WithTimeout(ctx, config.Game.StartTimeout)
		err := services.Engine.InitGame(initCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize economic model: %w", err)
		}
		log.Info().Str("engine_url", config.Engine.URL).Msg("economic model initialized")
	}

	sinks := broadcast.Fanout{services.Broadcaster}

	if config.NATS.Enabled {
		jsCfg := broadcast.DefaultJetStreamConfig()
		jsCfg.URL = config.NATS.URL
		jsCfg.StreamName = config.NATS.StreamName
		jsCfg.SubjectPrefix = config.NATS.SubjectPrefix
		relay, err := broadcast.NewJetStreamRelay(ctx, jsCfg)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("failed to create event relay: %w", err)
		}
		services.Relay = relay
		sinks = append(sinks, relay)
	}

	if config.Archive.Enabled {
		a, err := setupArchive(ctx, config)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.Archive = a
		sinks = append(sinks, a)
	}

	services.Coordinator = game.NewCoordinator(config.Game, services.Engine, sinks, nil)
	services.Gateway = gateway.NewService(gateway.DefaultConfig(), services.Coordinator, services.Broadcaster)

	return services, nil
}

// Start runs the background workers until ctx ends.
func (s *Services) Start(ctx context.Context) {
	go s.Broadcaster.Start(ctx)
	if s.Archive != nil {
		go s.Archive.Start(ctx)
	}
	go func() {
		if err := s.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()
}

func (s *Services) Close() {
	if s.Coordinator != nil {
		s.Coordinator.Close()
	}
	if s.Relay != nil {
		if err := s.Relay.Close(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
		}
	}
	if s.Archive != nil {
		s.Archive.Close()
	}
}
