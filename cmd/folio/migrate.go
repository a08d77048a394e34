package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfolio/folio/internal/config"
	"github.com/openfolio/folio/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}

		db, err := store.Open(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Database).Msg("Failed to open database")
		}
		defer db.Close()

		if err := store.EnsureSchema(db); err != nil {
			log.Fatal().Err(err).Msg("Migration failed")
		}
		log.Info().Str("path", cfg.Database).Msg("Database schema up to date")
	},
}
