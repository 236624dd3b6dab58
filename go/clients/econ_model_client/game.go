package econ_model_client

import (
	"context"
	"fmt"

	"github.com/mcdev12/solowsim/go/internal/models"
)

type roundResponse struct {
	Message      string `json:"message,omitempty"`
	CurrentRound int    `json:"current_round"`
}

type stateTeam struct {
	TeamName     string               `json:"team_name"`
	CurrentState models.EconomicState `json:"current_state"`
}

type stateResponse struct {
	CurrentRound int                  `json:"current_round"`
	Teams        map[string]stateTeam `json:"teams"`
}

// InitGame resets the engine for a new session.
func (c *EconModelClient) InitGame(ctx context.Context) error {
	if _, err := c.PostJSON(ctx, InitGameEndpoint, nil); err != nil {
		return fmt.Errorf("failed to init game: %w", err)
	}
	return nil
}

// StartGame starts the session on the engine side.
func (c *EconModelClient) StartGame(ctx context.Context) (models.EngineRound, error) {
	return c.postRound(ctx, StartGameEndpoint, "start game")
}

// AdvanceRound asks the engine to compute the next round.
func (c *EconModelClient) AdvanceRound(ctx context.Context) (models.EngineRound, error) {
	return c.postRound(ctx, NextRoundEndpoint, "advance round")
}

func (c *EconModelClient) postRound(ctx context.Context, endpoint, op string) (models.EngineRound, error) {
	body, err := c.PostJSON(ctx, endpoint, nil)
	if err != nil {
		return models.EngineRound{}, fmt.Errorf("failed to %s: %w", op, err)
	}

	var resp roundResponse
	if err := decode(body, &resp); err != nil {
		return models.EngineRound{}, fmt.Errorf("failed to %s: %w", op, err)
	}
	return models.EngineRound{CurrentRound: resp.CurrentRound}, nil
}

// GetState fetches the round counter and every team's economic state.
func (c *EconModelClient) GetState(ctx context.Context) (models.EngineState, error) {
	body, err := c.Get(ctx, StateEndpoint)
	if err != nil {
		return models.EngineState{}, fmt.Errorf("failed to get state: %w", err)
	}

	var resp stateResponse
	if err := decode(body, &resp); err != nil {
		return models.EngineState{}, fmt.Errorf("failed to get state: %w", err)
	}

	state := models.EngineState{
		CurrentRound: resp.CurrentRound,
		Teams:        make(map[models.TeamID]models.EngineTeam, len(resp.Teams)),
	}
	for id, team := range resp.Teams {
		state.Teams[models.TeamID(id)] = models.EngineTeam{
			ID:    models.TeamID(id),
			Name:  team.TeamName,
			State: team.CurrentState,
		}
	}
	return state, nil
}
