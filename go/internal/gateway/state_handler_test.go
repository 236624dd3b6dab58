package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/solowsim/go/internal/game"
	"github.com/mcdev12/solowsim/go/internal/game/broadcast"
	"github.com/mcdev12/solowsim/go/internal/game/enginetest"
	"github.com/mcdev12/solowsim/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	coordinator *game.Coordinator
	engine      *enginetest.Fake
	broadcaster *broadcast.Broadcaster
	service     *Service
	router      *mux.Router
}

func newTestEnv(t *testing.T, maxRounds int) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	b := broadcast.New(broadcast.DefaultConfig())
	go b.Start(ctx)

	cfg := game.DefaultConfig()
	cfg.MaxRounds = maxRounds
	cfg.RoundTimerSeconds = 0
	engine := enginetest.New()
	c := game.NewCoordinator(cfg, engine, b, clockwork.NewFakeClock())
	t.Cleanup(c.Close)

	svc := NewService(DefaultConfig(), c, b)
	t.Cleanup(func() { _ = svc.Stop() })
	router := mux.NewRouter()
	svc.RegisterRoutes(router)

	return &testEnv{coordinator: c, engine: engine, broadcaster: b, service: svc, router: router}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&game.ValidationError{Field: "savingsRate", Reason: "x"}, http.StatusBadRequest},
		{&game.NotFoundError{TeamID: "ghost"}, http.StatusNotFound},
		{&game.GameEndedError{}, http.StatusConflict},
		{&game.NotRunningError{Status: models.GameStatusPaused}, http.StatusConflict},
		{&game.TimeoutError{Op: "advance round", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{&game.EngineError{Op: "start game", Err: errors.New("down")}, http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", &game.EngineError{Op: "get state", Err: errors.New("down")}), http.StatusBadGateway},
		{errors.New("surprise"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestTeamRoutes(t *testing.T) {
	env := newTestEnv(t, 3)

	rec := env.do(t, http.MethodPost, "/api/teams", CreateTeamRequest{TeamName: "Freedonia"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[models.Team](t, rec)
	assert.Equal(t, "Freedonia", created.Name)

	rec = env.do(t, http.MethodGet, "/api/teams/"+string(created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decodeBody[models.Team](t, rec).ID)

	rec = env.do(t, http.MethodGet, "/api/teams", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.Team](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/teams/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/teams", CreateTeamRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitDecisionRoute(t *testing.T) {
	env := newTestEnv(t, 3)
	_, err := env.coordinator.JoinTeam(context.Background(), "alpha")
	require.NoError(t, err)

	path := "/api/teams/alpha/decisions"
	rec := env.do(t, http.MethodPost, path, UpdateTeamRequest{SavingsRate: 0.35, ExchangeRatePolicy: "undervalue"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[game.DecisionResult](t, rec)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 0.35, res.Team.SavingsRate)

	// The legacy field name is accepted and the repeat is a duplicate.
	rec = env.do(t, http.MethodPost, path, UpdateTeamRequest{SavingsRate: 0.35, ExchangeRate: "undervalue"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[game.DecisionResult](t, rec).Duplicate)
	assert.EqualValues(t, 1, env.engine.DecisionCalls.Load())

	rec = env.do(t, http.MethodPost, path, UpdateTeamRequest{SavingsRate: 2, ExchangeRatePolicy: "market"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/teams/ghost/decisions", UpdateTeamRequest{SavingsRate: 0.2, ExchangeRatePolicy: "market"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err = env.coordinator.JoinTeam(context.Background(), "beta")
	require.NoError(t, err)
	env.engine.FailNext(enginetest.MethodDecision, errors.New("down"))
	rec = env.do(t, http.MethodPost, "/api/teams/beta/decisions", UpdateTeamRequest{SavingsRate: 0.5, ExchangeRatePolicy: "market"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGameLifecycleRoutes(t *testing.T) {
	env := newTestEnv(t, 1)
	_, err := env.coordinator.JoinTeam(context.Background(), "alpha")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/game/advance", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/game/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[models.GameState](t, rec).Running)

	rec = env.do(t, http.MethodPost, "/api/game/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	paused := decodeBody[models.GameState](t, rec)
	assert.Equal(t, models.GameStatusPaused, paused.Status())

	// Start resumes a paused game.
	rec = env.do(t, http.MethodPost, "/api/game/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[models.GameState](t, rec).Running)
	assert.EqualValues(t, 1, env.engine.StartCalls.Load())

	rec = env.do(t, http.MethodPost, "/api/game/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[game.AdvanceResult](t, rec)
	assert.True(t, res.Ended)
	assert.Contains(t, res.Scores, models.TeamID("alpha"))

	rec = env.do(t, http.MethodPost, "/api/game/advance", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Scores, models.TeamID("alpha"))

	rec = env.do(t, http.MethodGet, "/api/game", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[models.GameState](t, rec).Ended)

	rec = env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, models.GameStatusEnded, health.GameStatus)
}
