package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/solowsim/go/internal/archive"
	"github.com/mcdev12/solowsim/go/internal/dbconfig"
	"github.com/rs/zerolog/log"
)

func setupArchive(ctx context.Context, config *Config) (*archive.Archive, error) {
	dbCfg := dbconfig.NewConfigFromEnv()

	a, err := archive.New(ctx, dbCfg.DSN(), config.Game.GameID, config.Archive.QueueSize)
	if err != nil {
		return nil, fmt.Errorf("failed to set up results archive: %w", err)
	}

	log.Info().
		Str("dsn", dbCfg.Redacted()).
		Msg("connected to results archive")
	return a, nil
}
