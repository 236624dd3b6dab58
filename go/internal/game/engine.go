package game

import (
	"context"

	"github.com/mcdev12/solowsim/go/internal/game/events"
	"github.com/mcdev12/solowsim/go/internal/models"
)

// EconomicModel is the external calculator. Calls may be slow or fail; the
// coordinator bounds each one with a deadline and never relies on the model to
// drop duplicates.
type EconomicModel interface {
	InitGame(ctx context.Context) error
	CreateTeam(ctx context.Context, name string) (models.EngineTeam, error)
	GetTeam(ctx context.Context, teamID models.TeamID) (models.EngineTeam, error)
	SubmitDecision(ctx context.Context, teamID models.TeamID, savingsRate float64, policy models.ExchangeRatePolicy) (models.EngineDecision, error)
	StartGame(ctx context.Context) (models.EngineRound, error)
	AdvanceRound(ctx context.Context) (models.EngineRound, error)
	GetState(ctx context.Context) (models.EngineState, error)
}

// Publisher receives committed events. Implementations must not block for long.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}
