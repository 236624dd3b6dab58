package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/solowsim/go/internal/dbconfig"
)

// Prints the archived final scores of one session as CSV.
func main() {
	gameID := "game"
	if len(os.Args) > 1 {
		gameID = os.Args[1]
	}

	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	rows, err := pool.Query(context.Background(), `
        SELECT s.team_id, s.score, s.ended_at, COUNT(r.round)
        FROM final_scores s
        LEFT JOIN round_results r ON r.game_id = s.game_id AND r.team_id = s.team_id
        WHERE s.game_id = $1
        GROUP BY s.team_id, s.score, s.ended_at
        ORDER BY s.score DESC
    `, gameID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query scores: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	w := csv.NewWriter(os.Stdout)
	_ = w.Write([]string{"team_id", "score", "rounds", "ended_at"})

	n := 0
	for rows.Next() {
		var (
			teamID  string
			score   float64
			endedAt time.Time
			rounds  int64
		)
		if err := rows.Scan(&teamID, &score, &endedAt, &rounds); err != nil {
			fmt.Fprintf(os.Stderr, "scan row: %v\n", err)
			os.Exit(1)
		}
		_ = w.Write([]string{
			teamID,
			strconv.FormatFloat(score, 'f', 2, 64),
			strconv.FormatInt(rounds, 10),
			endedAt.Format(time.RFC3339),
		})
		n++
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read rows: %v\n", err)
		os.Exit(1)
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "exported %d teams for game %s\n", n, gameID)
}
