package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/solowsim/go/internal/models"
)

// ClientMessageType names a frame sent by an observer.
type ClientMessageType string

const (
	ClientJoinTeam   ClientMessageType = "joinTeam"
	ClientUpdateTeam ClientMessageType = "updateTeam"
	ClientStartGame  ClientMessageType = "startGame"
	ClientPauseGame  ClientMessageType = "pauseGame"
	ClientNextRound  ClientMessageType = "nextRound"
)

// ClientMessage is the inbound frame envelope.
type ClientMessage struct {
	Type ClientMessageType `json:"type"`
	Data json.RawMessage   `json:"data,omitempty"`
}

// JoinTeamRequest binds the connection to a team channel.
type JoinTeamRequest struct {
	TeamID models.TeamID `json:"teamId"`
}

// UpdateTeamRequest is a team's decision for the current round. Older clients
// send the policy as exchangeRate.
type UpdateTeamRequest struct {
	TeamID             models.TeamID `json:"teamId"`
	SavingsRate        float64       `json:"savingsRate"`
	ExchangeRatePolicy string        `json:"exchangeRatePolicy"`
	ExchangeRate       string        `json:"exchangeRate"`
}

// Policy returns the requested policy, preferring the explicit field.
func (r UpdateTeamRequest) Policy() models.ExchangeRatePolicy {
	if r.ExchangeRatePolicy != "" {
		return models.ExchangeRatePolicy(r.ExchangeRatePolicy)
	}
	return models.ExchangeRatePolicy(r.ExchangeRate)
}

func decodeData(msg ClientMessage, out any) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("%s requires data", msg.Type)
	}
	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("invalid %s data: %w", msg.Type, err)
	}
	return nil
}
