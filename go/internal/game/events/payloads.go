package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/solowsim/go/internal/models"
)

// Event payload types shared between the coordinator, the broadcaster and the gateway.

// Type names an outbound notification.
type Type string

const (
	TypeGameState         Type = "gameState"
	TypeTeamUpdate        Type = "teamUpdate"
	TypeDecisionSubmitted Type = "decisionSubmitted"
	TypeError             Type = "error"
	TypeGameEnd           Type = "gameEnd"
	TypeTimerTick         Type = "timerTick"
)

// GlobalChannel is delivered to every subscriber.
const GlobalChannel = "global"

// TeamChannel is delivered to subscribers of one team.
func TeamChannel(teamID models.TeamID) string {
	return "team:" + string(teamID)
}

// Event is a committed state change on its way to observers.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Channel   string          `json:"channel"`
	Round     int             `json:"round"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New builds an event, marshalling the payload.
func New(eventType Type, channel string, round int, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Channel:   channel,
		Round:     round,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// DecisionSubmittedPayload acknowledges a decision to the caller.
type DecisionSubmittedPayload struct {
	Success   bool          `json:"success"`
	TeamID    models.TeamID `json:"teamId"`
	Round     int           `json:"round"`
	Duplicate bool          `json:"duplicate,omitempty"`
}

// ErrorPayload carries a failure back to the originating caller only.
type ErrorPayload struct {
	Message string `json:"message"`
}

// GameEndPayload is emitted once when scores are final.
type GameEndPayload struct {
	Scores  map[models.TeamID]float64 `json:"scores"`
	Round   int                       `json:"round"`
	EndedAt time.Time                 `json:"endedAt"`
}

// TimerTickPayload reports the countdown for the active round.
type TimerTickPayload struct {
	Round            int       `json:"round"`
	TimeRemainingSec int       `json:"timeRemainingSec"`
	TickedAt         time.Time `json:"tickedAt"`
}

// Decode parses event data into the payload struct for its type.
func Decode(event Event) (any, error) {
	var out any
	switch event.Type {
	case TypeGameState:
		out = &models.GameState{}
	case TypeTeamUpdate:
		out = &models.Team{}
	case TypeDecisionSubmitted:
		out = &DecisionSubmittedPayload{}
	case TypeError:
		out = &ErrorPayload{}
	case TypeGameEnd:
		out = &GameEndPayload{}
	case TypeTimerTick:
		out = &TimerTickPayload{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}
	if err := json.Unmarshal(event.Data, out); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", event.Type, err)
	}
	return out, nil
}
