// migrate applies the embedded SQL migrations: go run ./cmd/migrate -direction up
package main

import (
	"flag"
	"os"

	"starterkit/api/internal/config"
	"starterkit/api/internal/database/migrate"
	"starterkit/api/internal/log"
)

func main() {
	direction := flag.String("direction", migrate.DirectionUp, "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := log.Bootstrap(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	logger := log.New(cfg.Environment)
	for _, warning := range cfg.Warnings() {
		logger.Warn().Msg(warning)
	}

	if err := migrate.Run(cfg.Postgres.DSN, *direction); err != nil {
		logger.Error().Err(err).Str("direction", *direction).Msg("migration failed")
		os.Exit(1)
	}
	logger.Info().Str("direction", *direction).Msg("migrations applied")
}
