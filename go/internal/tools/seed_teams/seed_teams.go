package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mcdev12/solowsim/go/clients"
	"github.com/mcdev12/solowsim/go/internal/models"
)

// Team is one entry of the roster file
type Team struct {
	Name string `json:"name"`
}

func main() {
	// 1) Load the classroom roster
	path := "go/internal/assets/teams.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var teams []Team
	if err := json.Unmarshal(data, &teams); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Talk to the running coordinator
	baseURL := os.Getenv("COORDINATOR_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client := clients.NewBaseClient(baseURL)
	client.SetTimeout(15 * time.Second)

	// 3) Create and count
	var (
		total   = len(teams)
		created int
		errs    int
	)

	for _, t := range teams {
		body, err := client.PostJSON(context.Background(), "/api/teams", map[string]string{"teamName": t.Name})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating team %q: %v\n", t.Name, err)
			errs++
			continue
		}
		var team models.Team
		if err := json.Unmarshal(body, &team); err != nil {
			fmt.Fprintf(os.Stderr, "unexpected response for team %q: %v\n", t.Name, err)
			errs++
			continue
		}
		fmt.Printf("created %s (%s)\n", team.Name, team.ID)
		created++
	}

	// 4) Print summary
	fmt.Printf(
		"Teams seed complete: %d total, %d created, %d errors\n",
		total, created, errs,
	)
}
