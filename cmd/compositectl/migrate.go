package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/config"
	"github.com/ekaya-inc/ekaya-composites/pkg/database"
	"github.com/ekaya-inc/ekaya-composites/pkg/logging"
)

func migrateCmd(state *cliState) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configPath, Version)
			if err != nil {
				return err
			}

			dsn := cfg.Database.URL()
			state.logger.Info("Running migrations",
				zap.String("database", logging.RedactDSN(dsn)),
				zap.String("path", cfg.MigrationsPath))

			db, err := database.OpenSQL(dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.RunMigrations(db, cfg.MigrationsPath, state.logger); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "config file")
	return cmd
}
