package cli

import (
	"fmt"

	"github.com/axellelanca/trafficstats/cmd"
	"github.com/axellelanca/trafficstats/internal/database"
	"github.com/spf13/cobra"
)

// MigrateCmd represents the 'migrate' command
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Create or update the users, visitors and traffic_stats tables.
GORM AutoMigrate only adds missing tables, columns and indexes; it never drops data.`,
	RunE: func(c *cobra.Command, args []string) error {
		db, err := database.Open(cmd.Cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close(db)

		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		fmt.Println("Database migrations executed successfully.")
		return nil
	},
}

func init() {
	cmd.RootCmd.AddCommand(MigrateCmd)
}
