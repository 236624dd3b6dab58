package models

// GameStatus is the coarse lifecycle position of a session.
type GameStatus string

const (
	GameStatusNotStarted GameStatus = "NOT_STARTED"
	GameStatusRunning    GameStatus = "RUNNING"
	GameStatusPaused     GameStatus = "PAUSED"
	GameStatusEnded      GameStatus = "ENDED"
)

// DefaultMaxRounds is the number of rounds in a session.
const DefaultMaxRounds = 10

// GameState is the shared aggregate for one simulation session.
type GameState struct {
	Round        int                `json:"round"`
	MaxRounds    int                `json:"maxRounds"`
	TimerSeconds int                `json:"timerSeconds"`
	Started      bool               `json:"started"`
	Running      bool               `json:"running"`
	Ended        bool               `json:"ended"`
	Teams        map[TeamID]*Team   `json:"teams"`
	Scores       map[TeamID]float64 `json:"scores,omitempty"`
}

// NewGameState returns an empty, not yet started session.
func NewGameState(maxRounds, timerSeconds int) *GameState {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &GameState{
		MaxRounds:    maxRounds,
		TimerSeconds: timerSeconds,
		Teams:        make(map[TeamID]*Team),
	}
}

// Status derives the lifecycle position from the flags.
func (g *GameState) Status() GameStatus {
	switch {
	case g.Ended:
		return GameStatusEnded
	case g.Running:
		return GameStatusRunning
	case g.Started:
		return GameStatusPaused
	default:
		return GameStatusNotStarted
	}
}

// Clone returns a deep copy that shares nothing with g.
func (g *GameState) Clone() *GameState {
	out := &GameState{
		Round:        g.Round,
		MaxRounds:    g.MaxRounds,
		TimerSeconds: g.TimerSeconds,
		Started:      g.Started,
		Running:      g.Running,
		Ended:        g.Ended,
		Teams:        make(map[TeamID]*Team, len(g.Teams)),
	}
	for id, t := range g.Teams {
		out.Teams[id] = t.Clone()
	}
	if g.Scores != nil {
		out.Scores = make(map[TeamID]float64, len(g.Scores))
		for id, s := range g.Scores {
			out.Scores[id] = s
		}
	}
	return out
}
