package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/config"
	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/database"
	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/logging"
)

// Default configuration file path
const defaultConfigPath = "configs/smarthome.yaml"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "smarthome",
	Short:         "MQTT smart-home device node and monitoring client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads the configuration file and builds the logger for role.
func loadConfig(role string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version).With("role", role)
	log.Info("configuration loaded",
		"path", cfgPath,
		"version", version,
		"commit", commit,
		"build_date", date,
	)
	return cfg, log, nil
}

// openDatabase opens SQLite and applies the embedded migrations. The
// returned close function logs its own errors.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, func(), error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())

	return db, func() {
		log.Info("closing database")
		if err := db.Close(); err != nil {
			log.Error("error closing database", "error", err)
		}
	}, nil
}
