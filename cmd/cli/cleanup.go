package cli

import (
	"errors"
	"fmt"

	"github.com/axellelanca/trafficstats/cmd"
	"github.com/axellelanca/trafficstats/internal/database"
	"github.com/axellelanca/trafficstats/internal/repository"
	"github.com/axellelanca/trafficstats/internal/scheduler"
	"github.com/spf13/cobra"
)

var cleanupDaysFlag int

// CleanupCmd represents the 'cleanup' command
var CleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete traffic rows older than a number of days",
	Long: `Run the retention purge once. Without --days the configured retention.days is used.

Example:
  trafficstats cleanup --days=90`,
	RunE: func(c *cobra.Command, args []string) error {
		days := cleanupDaysFlag
		if !c.Flags().Changed("days") {
			days = cmd.Cfg.Retention.Days
		}
		if days <= 0 {
			return errors.New("--days must be positive")
		}

		db, err := cmd.OpenDatabase()
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close(db)

		deleted, err := scheduler.NewRetentionJob(repository.NewTrafficRepository(db), days).Purge(c.Context())
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Printf("Deleted %d traffic rows older than %d days.\n", deleted, days)
		return nil
	},
}

func init() {
	CleanupCmd.Flags().IntVar(&cleanupDaysFlag, "days", 0, "Keep the traffic of the last N days")
	cmd.RootCmd.AddCommand(CleanupCmd)
}
