// Package archive keeps a Postgres record of every played round and the final
// scores of each session.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/solowsim/go/internal/game/events"
	"github.com/mcdev12/solowsim/go/internal/models"
	"github.com/mcdev12/solowsim/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
)

// ErrQueueFull is returned when the archive falls too far behind.
var ErrQueueFull = errors.New("archive queue full")

const schema = `
CREATE TABLE IF NOT EXISTS round_results (
	game_id              TEXT             NOT NULL,
	team_id              TEXT             NOT NULL,
	round                INTEGER          NOT NULL,
	savings_rate         DOUBLE PRECISION NOT NULL,
	exchange_rate_policy TEXT             NOT NULL,
	economic_state       JSONB            NOT NULL,
	recorded_at          TIMESTAMPTZ      NOT NULL,
	PRIMARY KEY (game_id, team_id, round)
);

CREATE TABLE IF NOT EXISTS final_scores (
	game_id  TEXT             NOT NULL,
	team_id  TEXT             NOT NULL,
	score    DOUBLE PRECISION NOT NULL,
	ended_at TIMESTAMPTZ      NOT NULL,
	PRIMARY KEY (game_id, team_id)
);
`

// RoundRow is one team's archived round.
type RoundRow struct {
	TeamID             models.TeamID
	Round              int
	SavingsRate        float64
	ExchangeRatePolicy models.ExchangeRatePolicy
	State              models.EconomicState
	RecordedAt         time.Time
}

// ScoreRow is one team's final score.
type ScoreRow struct {
	TeamID  models.TeamID
	Score   float64
	EndedAt time.Time
}

// Rows extracts what an event contributes to the archive. Game state snapshots
// carry round history; gameEnd carries the scores. Other events yield nothing.
func Rows(event events.Event) ([]RoundRow, []ScoreRow, error) {
	switch event.Type {
	case events.TypeGameState:
		var state models.GameState
		if err := json.Unmarshal(event.Data, &state); err != nil {
			return nil, nil, fmt.Errorf("decode game state: %w", err)
		}
		var rounds []RoundRow
		for id, team := range state.Teams {
			for _, rec := range team.History {
				rounds = append(rounds, RoundRow{
					TeamID:             id,
					Round:              rec.Round,
					SavingsRate:        rec.SavingsRate,
					ExchangeRatePolicy: rec.ExchangeRatePolicy,
					State:              rec.State,
					RecordedAt:         rec.RecordedAt,
				})
			}
		}
		sort.Slice(rounds, func(i, j int) bool {
			if rounds[i].TeamID != rounds[j].TeamID {
				return rounds[i].TeamID < rounds[j].TeamID
			}
			return rounds[i].Round < rounds[j].Round
		})
		return rounds, nil, nil

	case events.TypeGameEnd:
		var payload events.GameEndPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, nil, fmt.Errorf("decode game end: %w", err)
		}
		scores := make([]ScoreRow, 0, len(payload.Scores))
		for id, score := range payload.Scores {
			scores = append(scores, ScoreRow{TeamID: id, Score: score, EndedAt: payload.EndedAt})
		}
		sort.Slice(scores, func(i, j int) bool { return scores[i].TeamID < scores[j].TeamID })
		return nil, scores, nil
	}
	return nil, nil, nil
}

// Archive is an event sink that writes round results in the background.
type Archive struct {
	pool    *pgxpool.Pool
	gameID  string
	queue   chan events.Event
	written atomic.Int64
}

// New connects to Postgres and creates the tables if needed.
func New(ctx context.Context, dsn, gameID string, queueSize int) (*Archive, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create archive tables: %w", err)
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Archive{
		pool:   pool,
		gameID: gameID,
		queue:  make(chan events.Event, queueSize),
	}, nil
}

// Publish queues an event without blocking the caller.
func (a *Archive) Publish(_ context.Context, event events.Event) error {
	if event.Type != events.TypeGameState && event.Type != events.TypeGameEnd {
		return nil
	}
	select {
	case a.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start writes queued events until ctx ends.
func (a *Archive) Start(ctx context.Context) {
	log.Info().Str("game_id", a.gameID).Msg("results archive started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Int64("rows_written", a.written.Load()).Msg("results archive stopped")
			return
		case event := <-a.queue:
			if err := a.write(ctx, event); err != nil {
				log.Error().Err(err).Str("event_id", event.ID).Msg("failed to archive event")
			}
		}
	}
}

// Close releases the pool.
func (a *Archive) Close() {
	a.pool.Close()
}

func (a *Archive) write(ctx context.Context, event events.Event) error {
	rounds, scores, err := Rows(event)
	if err != nil {
		return err
	}
	if len(rounds) == 0 && len(scores) == 0 {
		return nil
	}

	return sqlutil.Run(ctx, a.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range rounds {
			state, err := json.Marshal(r.State)
			if err != nil {
				return fmt.Errorf("encode economic state: %w", err)
			}
			batch.Queue(`
			INSERT INTO round_results (game_id, team_id, round, savings_rate, exchange_rate_policy, economic_state, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (game_id, team_id, round) DO NOTHING;
			`, a.gameID, string(r.TeamID), r.Round, r.SavingsRate, string(r.ExchangeRatePolicy), state, r.RecordedAt)
		}
		for _, s := range scores {
			batch.Queue(`
			INSERT INTO final_scores (game_id, team_id, score, ended_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (game_id, team_id) DO UPDATE SET score = $3, ended_at = $4;
			`, a.gameID, string(s.TeamID), s.Score, s.EndedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to write archive batch: %w", err)
		}
		a.written.Add(int64(len(rounds) + len(scores)))
		return nil
	})
}
