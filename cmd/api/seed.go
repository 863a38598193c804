package main

import (
	"encoding/json"
	"fmt"
	"os"

	"expenseflow/internal/database"
	"expenseflow/internal/logger"
	"expenseflow/internal/repository"
	"expenseflow/internal/service"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed <directory.json>",
	Short: "Load companies and users from an org directory export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logger.New(cfg.Log)

		file, err := readSeedFile(args[0])
		if err != nil {
			return err
		}

		db, err := database.Connect(cfg.Database, log)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer closeDB(db)
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		directory := service.NewDirectoryService(repository.NewDirectoryRepository(db), repository.NewTransactionManager(db), log)
		if err := directory.Seed(cmd.Context(), file); err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}
		log.WithField("companies", len(file.Companies)).Info("directory seeded")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func readSeedFile(path string) (service.SeedFile, error) {
	var file service.SeedFile
	raw, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return file, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return file, nil
}
