package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/notafacil/nfse-agent/internal/config"
	"github.com/notafacil/nfse-agent/internal/repository/postgres"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Marks abandoned sessions as expired in the durable store. Lazy expiry
// only fires when an address comes back; this sweep catches the ones
// that never do. Intended to run from cron.
func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	repo := postgres.NewSnapshotRepository(db)

	expired, err := repo.ExpireStale(ctx, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Sweep failed")
	}

	log.Info().Int64("expired", expired).Msg("Session sweep complete")
}
