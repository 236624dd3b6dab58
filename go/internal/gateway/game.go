package gateway

import (
	"context"

	"github.com/mcdev12/solowsim/go/internal/game"
	"github.com/mcdev12/solowsim/go/internal/game/broadcast"
	"github.com/mcdev12/solowsim/go/internal/models"
)

// Game is the coordinator surface the gateway drives.
type Game interface {
	JoinTeam(ctx context.Context, teamID models.TeamID) (*models.GameState, error)
	CreateTeam(ctx context.Context, name string) (*models.Team, error)
	SubmitDecision(ctx context.Context, teamID models.TeamID, savingsRate float64, policy models.ExchangeRatePolicy) (game.DecisionResult, error)
	StartGame(ctx context.Context) (*models.GameState, error)
	ResumeGame(ctx context.Context) (*models.GameState, error)
	PauseGame(ctx context.Context) (*models.GameState, error)
	AdvanceRound(ctx context.Context) (game.AdvanceResult, error)
	Snapshot() *models.GameState
	Team(teamID models.TeamID) (*models.Team, error)
	Teams() []*models.Team
}

// Subscriber hands out event subscriptions for connected observers.
type Subscriber interface {
	Subscribe(channels ...string) *broadcast.Subscription
	SubscriberCount() int
}

// startOrResume resumes a paused game and starts one that has not started.
func startOrResume(ctx context.Context, g Game) (*models.GameState, error) {
	if g.Snapshot().Status() == models.GameStatusPaused {
		return g.ResumeGame(ctx)
	}
	return g.StartGame(ctx)
}
