package gateway

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mcdev12/solowsim/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Service is the game gateway: WebSocket observers plus the REST API
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	game              Game
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new gateway service
func NewService(config Config, g Game, broadcaster Subscriber) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, g, broadcaster)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(g),
		game:              g,
	}
}

// Start blocks until ctx ends, then closes every connection.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting game gateway service")

	<-ctx.Done()

	log.Info().Msg("game gateway service shutting down")
	return s.Stop()
}

// Stop closes every open connection
func (s *Service) Stop() error {
	s.connectionManager.Shutdown()
	log.Info().Msg("game gateway service stopped")
	return nil
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status      string            `json:"status"`
	GameStatus  models.GameStatus `json:"gameStatus"`
	Round       int               `json:"round"`
	Teams       int               `json:"teams"`
	Connections int               `json:"connections"`
}

// HandleHealth handles GET /health
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := s.game.Snapshot()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		GameStatus:  snapshot.Status(),
		Round:       snapshot.Round,
		Teams:       len(snapshot.Teams),
		Connections: s.GetStats().TotalConnections,
	})
}

// RegisterRoutes registers the WebSocket, REST and health routes
func (s *Service) RegisterRoutes(router *mux.Router) {
	s.wsHandler.RegisterRoutes(router)
	s.stateHandler.RegisterStateRoutes(router)
	router.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)
	log.Info().Msg("game gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
