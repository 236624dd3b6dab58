// Package enginetest provides an in-memory economic model for tests.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcdev12/solowsim/go/internal/game/events"
	"github.com/mcdev12/solowsim/go/internal/models"
)

// Fake is a deterministic economic model. Each team's consumption grows with its
// savings rate every round so scores are easy to predict.
type Fake struct {
	// Delay is applied to every call before it does any work.
	Delay time.Duration

	mu     sync.Mutex
	round  int
	teams  map[models.TeamID]*fakeTeam
	nextID int
	errs   map[string]error

	InitCalls     atomic.Int64
	CreateCalls   atomic.Int64
	DecisionCalls atomic.Int64
	StartCalls    atomic.Int64
	AdvanceCalls  atomic.Int64
	StateCalls    atomic.Int64
	TeamCalls     atomic.Int64
}

type fakeTeam struct {
	name        string
	savingsRate float64
	policy      models.ExchangeRatePolicy
	state       models.EconomicState
}

// Method names accepted by FailNext.
const (
	MethodInit     = "InitGame"
	MethodCreate   = "CreateTeam"
	MethodDecision = "SubmitDecision"
	MethodStart    = "StartGame"
	MethodAdvance  = "AdvanceRound"
	MethodState    = "GetState"
	MethodTeam     = "GetTeam"
)

// New returns an empty fake engine.
func New() *Fake {
	return &Fake{
		teams: make(map[models.TeamID]*fakeTeam),
		errs:  make(map[string]error),
	}
}

// FailNext makes the next call to method return err.
func (f *Fake) FailNext(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

// Round is the engine's round counter.
func (f *Fake) Round() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.round
}

// Decision returns the last decision the engine recorded for a team.
func (f *Fake) Decision(teamID models.TeamID) (float64, models.ExchangeRatePolicy, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	team, ok := f.teams[teamID]
	if !ok {
		return 0, "", false
	}
	return team.savingsRate, team.policy, true
}

func (f *Fake) enter(ctx context.Context, method string) error {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[method]; ok {
		delete(f.errs, method)
		return err
	}
	return nil
}

func initialState() models.EconomicState {
	return models.EconomicState{
		models.MetricGDP:         100,
		models.MetricCapital:     300,
		models.MetricConsumption: 80,
		models.MetricLaborForce:  50,
		models.MetricNetExports:  0,
	}
}

// team must be called with f.mu held.
func (f *Fake) team(teamID models.TeamID) *fakeTeam {
	team, ok := f.teams[teamID]
	if !ok {
		team = &fakeTeam{
			savingsRate: models.DefaultSavingsRate,
			policy:      models.DefaultExchangeRatePolicy,
			state:       initialState(),
		}
		f.teams[teamID] = team
	}
	return team
}

func (f *Fake) InitGame(ctx context.Context) error {
	f.InitCalls.Add(1)
	if err := f.enter(ctx, MethodInit); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.round = 0
	f.teams = make(map[models.TeamID]*fakeTeam)
	return nil
}

func (f *Fake) CreateTeam(ctx context.Context, name string) (models.EngineTeam, error) {
	f.CreateCalls.Add(1)
	if err := f.enter(ctx, MethodCreate); err != nil {
		return models.EngineTeam{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := models.TeamID(fmt.Sprintf("team-%d", f.nextID))
	team := f.team(id)
	team.name = name
	return models.EngineTeam{ID: id, Name: name, State: team.state.Clone()}, nil
}

// ErrUnknownTeam is returned by GetTeam for teams the fake has never seen.
var ErrUnknownTeam = errors.New("team not found")

// AddTeam registers a team as if it had been created directly on the engine.
func (f *Fake) AddTeam(teamID models.TeamID, name string, state models.EconomicState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	team := f.team(teamID)
	team.name = name
	if state != nil {
		team.state = state.Clone()
	}
}

func (f *Fake) GetTeam(ctx context.Context, teamID models.TeamID) (models.EngineTeam, error) {
	f.TeamCalls.Add(1)
	if err := f.enter(ctx, MethodTeam); err != nil {
		return models.EngineTeam{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	team, ok := f.teams[teamID]
	if !ok {
		return models.EngineTeam{}, fmt.Errorf("%w: %s", ErrUnknownTeam, teamID)
	}
	return models.EngineTeam{ID: teamID, Name: team.name, State: team.state.Clone()}, nil
}

func (f *Fake) SubmitDecision(ctx context.Context, teamID models.TeamID, savingsRate float64, policy models.ExchangeRatePolicy) (models.EngineDecision, error) {
	f.DecisionCalls.Add(1)
	if err := f.enter(ctx, MethodDecision); err != nil {
		return models.EngineDecision{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	team := f.team(teamID)
	team.savingsRate = savingsRate
	team.policy = policy
	return models.EngineDecision{
		TeamID:             teamID,
		SavingsRate:        savingsRate,
		ExchangeRatePolicy: policy,
		State:              team.state.Clone(),
	}, nil
}

func (f *Fake) StartGame(ctx context.Context) (models.EngineRound, error) {
	f.StartCalls.Add(1)
	if err := f.enter(ctx, MethodStart); err != nil {
		return models.EngineRound{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.EngineRound{CurrentRound: f.round}, nil
}

func (f *Fake) AdvanceRound(ctx context.Context) (models.EngineRound, error) {
	f.AdvanceCalls.Add(1)
	if err := f.enter(ctx, MethodAdvance); err != nil {
		return models.EngineRound{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.round++
	for _, team := range f.teams {
		gdp := team.state[models.MetricGDP] * 1.05
		team.state[models.MetricGDP] = gdp
		team.state[models.MetricConsumption] = gdp * (1 - team.savingsRate)
		team.state[models.MetricCapital] += gdp * team.savingsRate
	}
	return models.EngineRound{CurrentRound: f.round}, nil
}

func (f *Fake) GetState(ctx context.Context) (models.EngineState, error) {
	f.StateCalls.Add(1)
	if err := f.enter(ctx, MethodState); err != nil {
		return models.EngineState{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := models.EngineState{CurrentRound: f.round, Teams: make(map[models.TeamID]models.EngineTeam, len(f.teams))}
	for id, team := range f.teams {
		out.Teams[id] = models.EngineTeam{ID: id, Name: team.name, State: team.state.Clone()}
	}
	return out, nil
}

// Recorder is a publisher that keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *Recorder) Publish(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// Count returns how many events of the given type were published.
func (r *Recorder) Count(eventType events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}
