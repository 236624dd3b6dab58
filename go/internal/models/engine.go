package models

// Results reported by the economic model engine.

// EngineDecision is the engine's acknowledgement of a team decision.
type EngineDecision struct {
	TeamID             TeamID             `json:"teamId"`
	SavingsRate        float64            `json:"savingsRate"`
	ExchangeRatePolicy ExchangeRatePolicy `json:"exchangeRatePolicy"`
	State              EconomicState      `json:"state,omitempty"`
}

// EngineRound is the engine's view of the round counter after start or advance.
type EngineRound struct {
	CurrentRound int `json:"currentRound"`
}

// EngineTeam is one team as the engine reports it.
type EngineTeam struct {
	ID    TeamID        `json:"id"`
	Name  string        `json:"name"`
	State EconomicState `json:"state"`
}

// EngineState is the full engine snapshot.
type EngineState struct {
	CurrentRound int                   `json:"currentRound"`
	Teams        map[TeamID]EngineTeam `json:"teams"`
}
