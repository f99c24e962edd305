package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/axellelanca/trafficstats/internal/config"
	"github.com/axellelanca/trafficstats/internal/database"
	"github.com/axellelanca/trafficstats/internal/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// Cfg is the global variable that will contain the loaded configuration
// It will be accessible to all Cobra commands throughout the application
var Cfg *config.Config

// RootCmd is the base command for the CLI application
// All other commands (run-server, migrate, stats, user, cleanup) are added as subcommands
var RootCmd = &cobra.Command{
	Use:   "trafficstats",
	Short: "Site traffic tracking and reporting",
	Long: `trafficstats records every HTTP request of a site and serves daily, weekly,
monthly and yearly traffic reports, the active users view and per-user request logs.`,
	SilenceUsage: true,
}

// Execute is the main entry point for the Cobra application
// It is called from 'main.go' and handles command execution and error handling
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Configuration is loaded before any command executes.
	// Subcommands register themselves via their own init() functions to avoid import cycles.
	cobra.OnInitialize(initConfig)
}

// initConfig loads the application configuration and installs the default logger.
func initConfig() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	Cfg = cfg

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	slog.Debug("configuration loaded", slog.String("log_level", cfg.Log.Level))
}

// OpenDatabase connects to the configured database and runs the migrations.
// Commands call it after initConfig has populated Cfg.
func OpenDatabase() (*gorm.DB, error) {
	db, err := database.Open(Cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}
