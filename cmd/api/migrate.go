package main

import (
	"fmt"

	"expenseflow/internal/database"
	"expenseflow/internal/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logger.New(cfg.Log)

		db, err := database.Connect(cfg.Database, log)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer closeDB(db)

		log.Info("running database migrations")
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database migrations completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
