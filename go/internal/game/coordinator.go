package game

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/solowsim/go/internal/game/events"
	"github.com/mcdev12/solowsim/go/internal/game/idempotency"
	"github.com/mcdev12/solowsim/go/internal/game/lock"
	"github.com/mcdev12/solowsim/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Coordinator owns the session's GameState. Every read and write of the state
// goes through its methods.
//
// Lease discipline: the game key is held exclusively by start, pause, resume,
// advance and end-of-game, and shared by decisions and team registration. Those
// additionally hold the team key exclusively. The round a decision applies to is read while
// both leases are held, so it can never be stale with respect to an advance.
type Coordinator struct {
	cfg       Config
	model     EconomicModel
	publisher Publisher
	clock     clockwork.Clock
	locks     *lock.Manager
	tracker   *idempotency.Tracker
	timer     *roundTimer

	// mu guards state memory. Logical exclusion is provided by the leases.
	mu    sync.RWMutex
	state *models.GameState
	// engineRound is the last round the engine confirmed advancing to. It lets a
	// retried advance skip the engine call when only the state fetch failed.
	engineRound int
}

// NewCoordinator wires a coordinator around the economic model. A nil publisher
// drops events; a nil clock uses the real clock.
func NewCoordinator(cfg Config, model EconomicModel, publisher Publisher, clock clockwork.Clock) *Coordinator {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Coordinator{
		cfg:       cfg,
		model:     model,
		publisher: publisher,
		clock:     clock,
		locks:     lock.NewManager(clock),
		tracker:   idempotency.NewTracker(),
		state:     models.NewGameState(cfg.MaxRounds, cfg.RoundTimerSeconds),
	}
	c.timer = newRoundTimer(clock, c.onTimerTick, c.onTimerExpired)
	return c
}

// Close stops the round timer.
func (c *Coordinator) Close() {
	c.timer.stop()
}

// Locks exposes the lease manager for health reporting.
func (c *Coordinator) Locks() *lock.Manager {
	return c.locks
}

// pending is an event produced inside a critical section and published after
// the leases are released.
type pending struct {
	eventType events.Type
	channel   string
	round     int
	payload   any
}

func (c *Coordinator) publish(ctx context.Context, batch ...pending) {
	if c.publisher == nil {
		return
	}
	for _, p := range batch {
		ev, err := events.New(p.eventType, p.channel, p.round, p.payload)
		if err != nil {
			log.Error().Err(err).Str("event_type", string(p.eventType)).Msg("failed to build event")
			continue
		}
		if err := c.publisher.Publish(ctx, ev); err != nil {
			// Fan-out is best effort; the mutation is already committed.
			log.Warn().Err(err).Str("event_type", string(p.eventType)).Msg("failed to publish event")
		}
	}
}

// Snapshot returns a deep copy of the current state.
func (c *Coordinator) Snapshot() *models.GameState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// Team returns a copy of one team.
func (c *Coordinator) Team(teamID models.TeamID) (*models.Team, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	team, ok := c.state.Teams[teamID]
	if !ok {
		return nil, &NotFoundError{TeamID: teamID}
	}
	return team.Clone(), nil
}

// Teams returns copies of every team ordered by id.
func (c *Coordinator) Teams() []*models.Team {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*models.Team, 0, len(c.state.Teams))
	for _, team := range c.state.Teams {
		out = append(out, team.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// JoinTeam registers an observer's team, creating it with the default decision
// on first sight. A team the economic model already knows starts from the
// model's figures. The snapshot is for the joining observer only; nothing is
// broadcast.
func (c *Coordinator) JoinTeam(ctx context.Context, teamID models.TeamID) (*models.GameState, error) {
	if strings.TrimSpace(string(teamID)) == "" {
		return nil, &ValidationError{Field: "teamId", Reason: "must not be empty"}
	}

	c.mu.RLock()
	_, known := c.state.Teams[teamID]
	c.mu.RUnlock()
	if known {
		return c.Snapshot(), nil
	}

	gameLease, teamLease, err := c.acquireTeam(ctx, "join team", teamID)
	if err != nil {
		return nil, err
	}
	defer c.locks.Release(gameLease)
	defer c.locks.Release(teamLease)

	c.mu.RLock()
	_, known = c.state.Teams[teamID]
	c.mu.RUnlock()
	if !known {
		team := models.NewTeam(teamID, "")
		callCtx, cancel := c.leaseContext(ctx, gameLease, teamLease)
		reported, err := c.model.GetTeam(callCtx, teamID)
		cancel()
		if err != nil {
			log.Debug().Err(err).Str("team_id", string(teamID)).Msg("team not known to the economic model, using defaults")
		} else {
			if reported.Name != "" {
				team.Name = reported.Name
			}
			team.EconomicState = reported.State.Clone()
		}

		c.mu.Lock()
		if _, ok := c.state.Teams[teamID]; !ok {
			c.state.Teams[teamID] = team
			log.Info().Str("team_id", string(teamID)).Msg("team created on join")
		}
		c.mu.Unlock()
	}
	return c.Snapshot(), nil
}

// CreateTeam registers a named team with the economic model and adds it to the
// session.
func (c *Coordinator) CreateTeam(ctx context.Context, name string) (*models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "teamName", Reason: "must not be empty"}
	}
	if ended, scores := c.ended(); ended {
		return nil, &GameEndedError{Scores: scores}
	}

	out, snapshot, err := c.commitCreateTeam(ctx, name)
	if err != nil {
		return nil, err
	}

	log.Info().Str("team_id", string(out.ID)).Str("team_name", out.Name).Msg("team created")
	c.publish(ctx, pending{events.TypeGameState, events.GlobalChannel, snapshot.Round, snapshot})
	return out, nil
}

func (c *Coordinator) commitCreateTeam(ctx context.Context, name string) (*models.Team, *models.GameState, error) {
	gameLease, err := c.locks.AcquireShared(ctx, lock.GameKey, c.cfg.DecisionTimeout)
	if err != nil {
		return nil, nil, leaseError("create team", err)
	}
	defer c.locks.Release(gameLease)

	if ended, scores := c.ended(); ended {
		return nil, nil, &GameEndedError{Scores: scores}
	}

	callCtx, cancel := gameLease.Context(ctx)
	defer cancel()
	created, err := c.model.CreateTeam(callCtx, name)
	if err != nil {
		return nil, nil, engineError("create team", err)
	}

	// The engine picks the id, so the team key can only be taken now.
	teamLease, err := c.locks.Acquire(callCtx, lock.TeamKey(string(created.ID)), c.cfg.DecisionTimeout)
	if err != nil {
		return nil, nil, leaseError("create team", err)
	}
	defer c.locks.Release(teamLease)

	c.mu.Lock()
	defer c.mu.Unlock()
	team, ok := c.state.Teams[created.ID]
	if !ok {
		team = models.NewTeam(created.ID, created.Name)
		c.state.Teams[created.ID] = team
	} else {
		team.Name = created.Name
	}
	if created.State != nil {
		team.EconomicState = created.State.Clone()
	}
	return team.Clone(), c.state.Clone(), nil
}

// acquireTeam takes the game key shared and then the team key exclusively. The
// team key wait is bounded by what is left of the game lease.
func (c *Coordinator) acquireTeam(ctx context.Context, op string, teamID models.TeamID) (*lock.Lease, *lock.Lease, error) {
	gameLease, err := c.locks.AcquireShared(ctx, lock.GameKey, c.cfg.DecisionTimeout)
	if err != nil {
		return nil, nil, leaseError(op, err)
	}

	waitCtx, cancel := gameLease.Context(ctx)
	teamLease, err := c.locks.Acquire(waitCtx, lock.TeamKey(string(teamID)), c.cfg.DecisionTimeout)
	cancel()
	if err != nil {
		c.locks.Release(gameLease)
		return nil, nil, leaseError(op, err)
	}
	return gameLease, teamLease, nil
}

// leaseContext bounds a call by every lease it runs under.
func (c *Coordinator) leaseContext(ctx context.Context, leases ...*lock.Lease) (context.Context, context.CancelFunc) {
	cancels := make([]context.CancelFunc, 0, len(leases))
	for _, l := range leases {
		var cancel context.CancelFunc
		ctx, cancel = l.Context(ctx)
		cancels = append(cancels, cancel)
	}
	return ctx, func() {
		for i := len(cancels) - 1; i >= 0; i-- {
			cancels[i]()
		}
	}
}

func validateDecision(teamID models.TeamID, savingsRate float64, policy models.ExchangeRatePolicy) error {
	if strings.TrimSpace(string(teamID)) == "" {
		return &ValidationError{Field: "teamId", Reason: "must not be empty"}
	}
	if !(savingsRate >= models.MinSavingsRate && savingsRate <= models.MaxSavingsRate) {
		return &ValidationError{Field: "savingsRate", Reason: "must be between 0.01 and 0.99"}
	}
	if !policy.Valid() {
		return &ValidationError{Field: "exchangeRatePolicy", Reason: "must be one of undervalue, market, overvalue"}
	}
	return nil
}

// SubmitDecision applies a team's decision for the current round exactly once.
// Repeats for the same team and round succeed with Duplicate set.
func (c *Coordinator) SubmitDecision(ctx context.Context, teamID models.TeamID, savingsRate float64, policy models.ExchangeRatePolicy) (DecisionResult, error) {
	if err := validateDecision(teamID, savingsRate, policy); err != nil {
		return DecisionResult{}, err
	}

	// Cheap pre-check before queueing for leases.
	if res, done, err := c.checkDecision(teamID); done || err != nil {
		return res, err
	}

	res, err := c.commitDecision(ctx, teamID, savingsRate, policy)
	if err != nil {
		log.Warn().Err(err).Str("team_id", string(teamID)).Msg("decision not applied")
		return DecisionResult{}, err
	}
	if !res.Duplicate {
		log.Info().
			Str("team_id", string(teamID)).
			Int("round", res.Round).
			Float64("savings_rate", savingsRate).
			Str("exchange_rate_policy", string(policy)).
			Msg("decision committed")
		c.publish(ctx, pending{events.TypeTeamUpdate, events.TeamChannel(teamID), res.Round, res.Team})
	}
	return res, nil
}

// checkDecision reports done when the decision must not reach the engine.
func (c *Coordinator) checkDecision(teamID models.TeamID) (DecisionResult, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state.Ended {
		return DecisionResult{}, true, &GameEndedError{Scores: copyScores(c.state.Scores)}
	}
	team, ok := c.state.Teams[teamID]
	if !ok {
		return DecisionResult{}, true, &NotFoundError{TeamID: teamID}
	}
	round := c.state.Round
	if c.tracker.IsCommitted(idempotency.DecisionKey(string(teamID), round)) {
		return DecisionResult{TeamID: teamID, Round: round, Duplicate: true, Team: team.Clone()}, true, nil
	}
	return DecisionResult{}, false, nil
}

func (c *Coordinator) commitDecision(ctx context.Context, teamID models.TeamID, savingsRate float64, policy models.ExchangeRatePolicy) (DecisionResult, error) {
	gameLease, teamLease, err := c.acquireTeam(ctx, "submit decision", teamID)
	if err != nil {
		return DecisionResult{}, err
	}
	defer c.locks.Release(gameLease)
	defer c.locks.Release(teamLease)

	// Re-read under both leases: the round cannot move until they are released.
	if res, done, err := c.checkDecision(teamID); done || err != nil {
		return res, err
	}
	c.mu.RLock()
	round := c.state.Round
	c.mu.RUnlock()
	key := idempotency.DecisionKey(string(teamID), round)

	callCtx, cancel := c.leaseContext(ctx, gameLease, teamLease)
	decision, err := c.model.SubmitDecision(callCtx, teamID, savingsRate, policy)
	cancel()
	if err != nil {
		c.tracker.Reset(key)
		return DecisionResult{}, engineError("submit decision", err)
	}

	c.mu.Lock()
	team := c.state.Teams[teamID]
	team.SavingsRate = savingsRate
	team.ExchangeRatePolicy = policy
	if decision.State != nil {
		team.EconomicState = decision.State.Clone()
	}
	out := team.Clone()
	c.mu.Unlock()

	c.tracker.MarkCommitted(key)
	return DecisionResult{TeamID: teamID, Round: round, Team: out}, nil
}

// StartGame starts the session once. Further calls, concurrent or later,
// succeed without touching the engine.
func (c *Coordinator) StartGame(ctx context.Context) (*models.GameState, error) {
	startKey := idempotency.StartKey(c.cfg.GameID)
	if snapshot, done, err := c.checkStart(startKey); done || err != nil {
		return snapshot, err
	}

	snapshot, started, err := c.commitStart(ctx, startKey)
	if err != nil {
		log.Warn().Err(err).Msg("game not started")
		return nil, err
	}
	if started {
		log.Info().Int("round", snapshot.Round).Int("teams", len(snapshot.Teams)).Msg("game started")
		c.publish(ctx, pending{events.TypeGameState, events.GlobalChannel, snapshot.Round, snapshot})
	}
	return snapshot, nil
}

func (c *Coordinator) checkStart(startKey idempotency.Key) (*models.GameState, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state.Ended {
		return nil, true, &GameEndedError{Scores: copyScores(c.state.Scores)}
	}
	if c.state.Running || c.tracker.IsCommitted(startKey) {
		return c.state.Clone(), true, nil
	}
	return nil, false, nil
}

func (c *Coordinator) commitStart(ctx context.Context, startKey idempotency.Key) (*models.GameState, bool, error) {
	lease, err := c.locks.Acquire(ctx, lock.GameKey, c.cfg.StartTimeout)
	if err != nil {
		return nil, false, leaseError("start game", err)
	}
	defer c.locks.Release(lease)

	if snapshot, done, err := c.checkStart(startKey); done || err != nil {
		return snapshot, false, err
	}

	callCtx, cancel := lease.Context(ctx)
	result, err := c.model.StartGame(callCtx)
	cancel()
	if err != nil {
		c.tracker.Reset(startKey)
		return nil, false, engineError("start game", err)
	}

	c.mu.Lock()
	c.state.Started = true
	c.state.Running = true
	if result.CurrentRound > c.state.Round {
		c.state.Round = result.CurrentRound
	}
	c.engineRound = c.state.Round
	c.state.TimerSeconds = c.cfg.RoundTimerSeconds
	snapshot := c.state.Clone()
	c.mu.Unlock()

	c.tracker.MarkCommitted(startKey)
	// Timer changes happen under the lease so they apply in commit order.
	c.timer.start(snapshot.Round, c.cfg.RoundTimerSeconds)
	return snapshot, true, nil
}

// PauseGame stops the round clock. Decisions are still accepted; rounds cannot
// be advanced until the game is resumed.
func (c *Coordinator) PauseGame(ctx context.Context) (*models.GameState, error) {
	return c.setRunning(ctx, false)
}

// ResumeGame restarts a paused game without calling the engine.
func (c *Coordinator) ResumeGame(ctx context.Context) (*models.GameState, error) {
	return c.setRunning(ctx, true)
}

func (c *Coordinator) setRunning(ctx context.Context, running bool) (*models.GameState, error) {
	op := "pause game"
	if running {
		op = "resume game"
	}

	lease, err := c.locks.Acquire(ctx, lock.GameKey, c.cfg.StartTimeout)
	if err != nil {
		return nil, leaseError(op, err)
	}

	c.mu.Lock()
	switch {
	case c.state.Ended:
		scores := copyScores(c.state.Scores)
		c.mu.Unlock()
		c.locks.Release(lease)
		return nil, &GameEndedError{Scores: scores}
	case running && !c.state.Started:
		status := c.state.Status()
		c.mu.Unlock()
		c.locks.Release(lease)
		return nil, &NotRunningError{Status: status}
	case c.state.Running == running:
		snapshot := c.state.Clone()
		c.mu.Unlock()
		c.locks.Release(lease)
		return snapshot, nil
	}
	c.state.Running = running
	snapshot := c.state.Clone()
	c.mu.Unlock()

	if running {
		c.timer.start(snapshot.Round, snapshot.TimerSeconds)
	} else {
		c.timer.stop()
	}
	c.locks.Release(lease)

	log.Info().Bool("running", running).Int("round", snapshot.Round).Msg(op)
	c.publish(ctx, pending{events.TypeGameState, events.GlobalChannel, snapshot.Round, snapshot})
	return snapshot, nil
}

// AdvanceRound moves the session from round R to R+1 exactly once. Once the
// last round has been played it triggers end-of-game scoring instead.
func (c *Coordinator) AdvanceRound(ctx context.Context) (AdvanceResult, error) {
	c.mu.RLock()
	ended, running := c.state.Ended, c.state.Running
	round, status := c.state.Round, c.state.Status()
	scores := copyScores(c.state.Scores)
	c.mu.RUnlock()

	switch {
	case ended:
		return AdvanceResult{}, &GameEndedError{Scores: scores}
	case round >= c.cfg.MaxRounds:
		return c.finish(ctx)
	case !running:
		return AdvanceResult{}, &NotRunningError{Status: status}
	}

	// No lock-free duplicate check here: an advance into the last round ends the
	// game under the same lease, and callers must observe both or neither.
	res, batch, err := c.commitAdvance(ctx, round)
	if err != nil {
		log.Warn().Err(err).Int("round", round).Msg("round not advanced")
		return AdvanceResult{}, err
	}
	if !res.Duplicate {
		log.Info().Int("round", res.Round).Bool("ended", res.Ended).Msg("round advanced")
	}
	c.publish(ctx, batch...)
	return res, nil
}

// commitAdvance advances from the observed round. Callers that queued behind an
// advance of the same round come out as duplicates.
func (c *Coordinator) commitAdvance(ctx context.Context, observed int) (AdvanceResult, []pending, error) {
	lease, err := c.locks.Acquire(ctx, lock.GameKey, c.cfg.AdvanceTimeout)
	if err != nil {
		return AdvanceResult{}, nil, leaseError("advance round", err)
	}
	defer c.locks.Release(lease)

	c.mu.RLock()
	ended, running := c.state.Ended, c.state.Running
	round, status := c.state.Round, c.state.Status()
	scores := copyScores(c.state.Scores)
	engineRound := c.engineRound
	c.mu.RUnlock()

	switch {
	case ended:
		return AdvanceResult{}, nil, &GameEndedError{Scores: scores}
	case round != observed || c.tracker.IsCommitted(idempotency.AdvanceKey(c.cfg.GameID, observed)):
		return AdvanceResult{Round: round, Duplicate: true, State: c.Snapshot()}, nil, nil
	case round >= c.cfg.MaxRounds:
		return c.finishLocked()
	case !running:
		return AdvanceResult{}, nil, &NotRunningError{Status: status}
	}
	key := idempotency.AdvanceKey(c.cfg.GameID, round)

	callCtx, cancel := lease.Context(ctx)
	defer cancel()

	nextRound := engineRound
	if engineRound <= round {
		advanced, err := c.model.AdvanceRound(callCtx)
		if err != nil {
			c.tracker.Reset(key)
			return AdvanceResult{}, nil, engineError("advance round", err)
		}
		nextRound = advanced.CurrentRound
		if nextRound <= round {
			log.Warn().Int("round", round).Int("engine_round", nextRound).Msg("engine did not move the round forward")
			nextRound = round + 1
		}
		c.mu.Lock()
		c.engineRound = nextRound
		c.mu.Unlock()
	}

	engineState, err := c.model.GetState(callCtx)
	if err != nil {
		c.tracker.Reset(key)
		return AdvanceResult{}, nil, engineError("get state", err)
	}

	now := c.clock.Now().UTC()
	c.mu.Lock()
	for id, team := range c.state.Teams {
		reported, ok := engineState.Teams[id]
		if !ok {
			continue
		}
		team.EconomicState = reported.State.Clone()
		team.History = append(team.History, models.RoundRecord{
			Round:              round,
			SavingsRate:        team.SavingsRate,
			ExchangeRatePolicy: team.ExchangeRatePolicy,
			State:              reported.State.Clone(),
			RecordedAt:         now,
		})
	}
	c.state.Round = nextRound
	c.state.TimerSeconds = c.cfg.RoundTimerSeconds
	snapshot := c.state.Clone()
	c.mu.Unlock()

	c.tracker.MarkCommitted(key)

	res := AdvanceResult{Round: nextRound, State: snapshot}
	batch := []pending{{events.TypeGameState, events.GlobalChannel, nextRound, snapshot}}

	if nextRound >= c.cfg.MaxRounds {
		final, endBatch, err := c.finishLocked()
		if err != nil {
			// Only possible if end-of-game already ran; the advance itself stands.
			log.Warn().Err(err).Msg("end of game already recorded")
			return res, batch, nil
		}
		return final, append(batch, endBatch...), nil
	}
	c.timer.start(nextRound, c.cfg.RoundTimerSeconds)
	return res, batch, nil
}

func (c *Coordinator) finish(ctx context.Context) (AdvanceResult, error) {
	if c.tracker.IsCommitted(idempotency.EndKey(c.cfg.GameID)) {
		return AdvanceResult{}, &GameEndedError{Scores: c.Snapshot().Scores}
	}

	lease, err := c.locks.Acquire(ctx, lock.GameKey, c.cfg.AdvanceTimeout)
	if err != nil {
		return AdvanceResult{}, leaseError("end game", err)
	}
	res, batch, err := c.finishLocked()
	c.locks.Release(lease)
	if err != nil {
		return AdvanceResult{}, err
	}

	c.publish(ctx, batch...)
	return res, nil
}

// finishLocked computes final scores. It is the only place the session ends and
// runs at most once. Callers hold the game lease exclusively.
func (c *Coordinator) finishLocked() (AdvanceResult, []pending, error) {
	endKey := idempotency.EndKey(c.cfg.GameID)

	c.mu.Lock()
	if c.tracker.IsCommitted(endKey) {
		scores := copyScores(c.state.Scores)
		c.mu.Unlock()
		return AdvanceResult{}, nil, &GameEndedError{Scores: scores}
	}

	scores := make(map[models.TeamID]float64, len(c.state.Teams))
	for id, team := range c.state.Teams {
		team.Score = team.TotalConsumption()
		scores[id] = team.Score
	}
	c.state.Scores = scores
	c.state.Running = false
	c.state.Ended = true
	c.state.TimerSeconds = 0
	snapshot := c.state.Clone()
	c.tracker.MarkCommitted(endKey)
	c.mu.Unlock()

	c.timer.stop()
	log.Info().Int("round", snapshot.Round).Int("teams", len(scores)).Msg("game ended, scores final")

	payload := events.GameEndPayload{
		Scores:  copyScores(scores),
		Round:   snapshot.Round,
		EndedAt: c.clock.Now().UTC(),
	}
	res := AdvanceResult{Round: snapshot.Round, Ended: true, Scores: copyScores(scores), State: snapshot}
	return res, []pending{
		{events.TypeGameState, events.GlobalChannel, snapshot.Round, snapshot},
		{events.TypeGameEnd, events.GlobalChannel, snapshot.Round, payload},
	}, nil
}

func (c *Coordinator) ended() (bool, map[models.TeamID]float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Ended, copyScores(c.state.Scores)
}

func copyScores(in map[models.TeamID]float64) map[models.TeamID]float64 {
	if in == nil {
		return nil
	}
	out := make(map[models.TeamID]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
