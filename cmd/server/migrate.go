package main

import (
	"anoa.com/notifyhub/internal/config"
	"anoa.com/notifyhub/internal/logging"
	"anoa.com/notifyhub/pkg/database"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the notifications schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

			db, err := database.Connect(cfg)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.Migrate(db); err != nil {
				return err
			}
			logging.Info().Msg("migration completed")
			return nil
		},
	}
}
