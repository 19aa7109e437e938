package main

import (
	"context"
	"os"

	"github.com/safar/kasir-pos/internal/config"
	"github.com/safar/kasir-pos/internal/database"
	"github.com/safar/kasir-pos/internal/logger"
)

func main() {
	cfg, err := config.Load()
	log := logger.New(config.LogConfig{Level: "info", Pretty: true})
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	if len(os.Args) < 2 {
		log.Fatal().Msg("usage: go run scripts/run_migrations.go [up|down]")
	}
	direction := database.MigrateDirection(os.Args[1])
	if direction != database.MigrateUp && direction != database.MigrateDown {
		log.Fatal().Str("direction", os.Args[1]).Msg("direction must be 'up' or 'down'")
	}

	db, err := database.Connect(context.Background(), &cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(db, direction); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	log.Info().Str("direction", string(direction)).Msg("migrations applied")
}
