package econ_model_client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mcdev12/solowsim/go/internal/models"
)

type createTeamRequest struct {
	TeamName string `json:"team_name"`
}

type decisionRequest struct {
	TeamID             string  `json:"team_id"`
	SavingsRate        float64 `json:"savings_rate"`
	ExchangeRatePolicy string  `json:"exchange_rate_policy"`
}

type teamResponse struct {
	TeamID             string               `json:"team_id"`
	TeamName           string               `json:"team_name"`
	SavingsRate        *float64             `json:"savings_rate,omitempty"`
	ExchangeRatePolicy string               `json:"exchange_rate_policy,omitempty"`
	CurrentState       models.EconomicState `json:"current_state,omitempty"`
}

// CreateTeam registers a team with the engine and returns the id it assigned.
func (c *EconModelClient) CreateTeam(ctx context.Context, name string) (models.EngineTeam, error) {
	body, err := c.PostJSON(ctx, CreateTeamEndpoint, createTeamRequest{TeamName: name})
	if err != nil {
		return models.EngineTeam{}, fmt.Errorf("failed to create team: %w", err)
	}

	var resp teamResponse
	if err := decode(body, &resp); err != nil {
		return models.EngineTeam{}, fmt.Errorf("failed to create team: %w", err)
	}
	if resp.TeamID == "" {
		return models.EngineTeam{}, fmt.Errorf("failed to create team: engine returned no team_id")
	}
	if resp.TeamName == "" {
		resp.TeamName = name
	}
	return models.EngineTeam{
		ID:    models.TeamID(resp.TeamID),
		Name:  resp.TeamName,
		State: resp.CurrentState,
	}, nil
}

// SubmitDecision records a team's policy for the current round.
func (c *EconModelClient) SubmitDecision(ctx context.Context, teamID models.TeamID, savingsRate float64, policy models.ExchangeRatePolicy) (models.EngineDecision, error) {
	body, err := c.PostJSON(ctx, DecisionsEndpoint, decisionRequest{
		TeamID:             string(teamID),
		SavingsRate:        savingsRate,
		ExchangeRatePolicy: string(policy),
	})
	if err != nil {
		return models.EngineDecision{}, fmt.Errorf("failed to submit decision: %w", err)
	}

	var resp teamResponse
	if err := decode(body, &resp); err != nil {
		return models.EngineDecision{}, fmt.Errorf("failed to submit decision: %w", err)
	}

	decision := models.EngineDecision{
		TeamID:             teamID,
		SavingsRate:        savingsRate,
		ExchangeRatePolicy: policy,
		State:              resp.CurrentState,
	}
	if resp.SavingsRate != nil {
		decision.SavingsRate = *resp.SavingsRate
	}
	if p, err := models.ParseExchangeRatePolicy(resp.ExchangeRatePolicy); err == nil {
		decision.ExchangeRatePolicy = p
	}
	return decision, nil
}

// GetTeam fetches one team from the engine.
func (c *EconModelClient) GetTeam(ctx context.Context, teamID models.TeamID) (models.EngineTeam, error) {
	body, err := c.Get(ctx, fmt.Sprintf(TeamEndpoint, url.PathEscape(string(teamID))))
	if err != nil {
		return models.EngineTeam{}, fmt.Errorf("failed to get team: %w", err)
	}

	var resp teamResponse
	if err := decode(body, &resp); err != nil {
		return models.EngineTeam{}, fmt.Errorf("failed to get team: %w", err)
	}
	return models.EngineTeam{
		ID:    teamID,
		Name:  resp.TeamName,
		State: resp.CurrentState,
	}, nil
}
