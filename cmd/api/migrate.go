package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/config"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/migrations"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Apply or roll back the SQL schema",
		Long: `Apply (up, the default) or roll back one step (down) of the
payment_transactions schema. Only Postgres drivers use SQL migrations.

Examples:
  api migrate
  api migrate down`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DbDriver == config.DriverSQLite {
				return fmt.Errorf("sqlite schema is created on startup, nothing to migrate")
			}

			files, err := migrations.Names()
			if err != nil {
				return err
			}
			log.Info().Strs("files", files).Str("direction", direction).Msg("running migrations")

			switch direction {
			case "up":
				err = migrations.Up(cfg.PostgresURL())
			case "down":
				err = migrations.Down(cfg.PostgresURL())
			default:
				return fmt.Errorf("unknown direction %q, want up or down", direction)
			}
			if err != nil {
				return err
			}
			log.Info().Msg("migrations complete")
			return nil
		},
	}
}
