package game

import (
	"time"

	"github.com/mcdev12/solowsim/go/internal/models"
)

// Config holds the coordinator's limits and deadlines.
type Config struct {
	GameID            string        `yaml:"game_id"`
	MaxRounds         int           `yaml:"max_rounds"`
	RoundTimerSeconds int           `yaml:"round_timer_seconds"`
	AutoAdvance       bool          `yaml:"auto_advance"`
	DecisionTimeout   time.Duration `yaml:"decision_timeout"`
	StartTimeout      time.Duration `yaml:"start_timeout"`
	AdvanceTimeout    time.Duration `yaml:"advance_timeout"`
}

// DefaultConfig returns the standard classroom session settings.
func DefaultConfig() Config {
	return Config{
		GameID:            "game",
		MaxRounds:         models.DefaultMaxRounds,
		RoundTimerSeconds: 300,
		DecisionTimeout:   5 * time.Second,
		StartTimeout:      10 * time.Second,
		AdvanceTimeout:    30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.GameID == "" {
		c.GameID = def.GameID
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = def.MaxRounds
	}
	if c.RoundTimerSeconds < 0 {
		c.RoundTimerSeconds = 0
	}
	if c.DecisionTimeout <= 0 {
		c.DecisionTimeout = def.DecisionTimeout
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = def.StartTimeout
	}
	if c.AdvanceTimeout <= 0 {
		c.AdvanceTimeout = def.AdvanceTimeout
	}
	return c
}

// DecisionResult is returned by SubmitDecision. Duplicate is set when the
// decision for this team and round had already been applied.
type DecisionResult struct {
	TeamID    models.TeamID `json:"teamId"`
	Round     int           `json:"round"`
	Duplicate bool          `json:"duplicate"`
	Team      *models.Team  `json:"team"`
}

// AdvanceResult is returned by AdvanceRound.
type AdvanceResult struct {
	Round     int                       `json:"round"`
	Duplicate bool                      `json:"duplicate"`
	Ended     bool                      `json:"ended"`
	Scores    map[models.TeamID]float64 `json:"scores,omitempty"`
	State     *models.GameState         `json:"state"`
}
