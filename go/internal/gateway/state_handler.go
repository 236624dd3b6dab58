package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mcdev12/solowsim/go/internal/game"
	"github.com/mcdev12/solowsim/go/internal/models"
	"github.com/rs/zerolog/log"
)

// StateHandler serves the game over plain HTTP for clients without a socket.
type StateHandler struct {
	game Game
}

// NewStateHandler creates a new state handler
func NewStateHandler(g Game) *StateHandler {
	return &StateHandler{game: g}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string                    `json:"error"`
	Scores map[models.TeamID]float64 `json:"scores,omitempty"`
}

// CreateTeamRequest is the body of POST /api/teams.
type CreateTeamRequest struct {
	TeamName string `json:"teamName"`
}

// statusFor maps the coordinator's errors onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrGameEnded), errors.Is(err, game.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, game.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, game.ErrEngine):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	var ended *game.GameEndedError
	if errors.As(err, &ended) {
		resp.Scores = ended.Scores
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, resp)
}

// HandleGetGame handles GET /api/game
func (h *StateHandler) HandleGetGame(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.game.Snapshot())
}

// HandleStartGame handles POST /api/game/start. A paused game is resumed.
func (h *StateHandler) HandleStartGame(w http.ResponseWriter, r *http.Request) {
	state, err := startOrResume(r.Context(), h.game)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandlePauseGame handles POST /api/game/pause
func (h *StateHandler) HandlePauseGame(w http.ResponseWriter, r *http.Request) {
	state, err := h.game.PauseGame(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleAdvanceRound handles POST /api/game/advance
func (h *StateHandler) HandleAdvanceRound(w http.ResponseWriter, r *http.Request) {
	res, err := h.game.AdvanceRound(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleListTeams handles GET /api/teams
func (h *StateHandler) HandleListTeams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.game.Teams())
}

// HandleGetTeam handles GET /api/teams/{teamId}
func (h *StateHandler) HandleGetTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.game.Team(models.TeamID(mux.Vars(r)["teamId"]))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

// HandleCreateTeam handles POST /api/teams
func (h *StateHandler) HandleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req CreateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &game.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	team, err := h.game.CreateTeam(r.Context(), req.TeamName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

// HandleSubmitDecision handles POST /api/teams/{teamId}/decisions
func (h *StateHandler) HandleSubmitDecision(w http.ResponseWriter, r *http.Request) {
	var req UpdateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &game.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	req.TeamID = models.TeamID(mux.Vars(r)["teamId"])

	res, err := h.game.SubmitDecision(r.Context(), req.TeamID, req.SavingsRate, req.Policy())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RegisterStateRoutes registers the REST routes
func (h *StateHandler) RegisterStateRoutes(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/game", h.HandleGetGame).Methods(http.MethodGet)
	api.HandleFunc("/game/start", h.HandleStartGame).Methods(http.MethodPost)
	api.HandleFunc("/game/pause", h.HandlePauseGame).Methods(http.MethodPost)
	api.HandleFunc("/game/advance", h.HandleAdvanceRound).Methods(http.MethodPost)
	api.HandleFunc("/teams", h.HandleListTeams).Methods(http.MethodGet)
	api.HandleFunc("/teams", h.HandleCreateTeam).Methods(http.MethodPost)
	api.HandleFunc("/teams/{teamId}", h.HandleGetTeam).Methods(http.MethodGet)
	api.HandleFunc("/teams/{teamId}/decisions", h.HandleSubmitDecision).Methods(http.MethodPost)
}
