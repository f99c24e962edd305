package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/axellelanca/trafficstats/cmd"
	"github.com/axellelanca/trafficstats/internal/database"
	apperrors "github.com/axellelanca/trafficstats/internal/errors"
	"github.com/axellelanca/trafficstats/internal/repository"
	"github.com/axellelanca/trafficstats/internal/services"
	"github.com/spf13/cobra"
)

// StatsCmd represents the 'stats' command
var StatsCmd = &cobra.Command{
	Use:   "stats [daily|weekly|monthly|yearly] [value]",
	Short: "Print a traffic report",
	Long: `Print the traffic report of a period followed by the visitor totals of that period.
The value uses the same format as the API: YYYY-MM-DD, YYYY-WW, YYYY-MM or YYYY.
Without a value the current period is reported.

Example:
  trafficstats stats weekly 2025-06`,
	Args:      cobra.RangeArgs(0, 2),
	ValidArgs: []string{"daily", "weekly", "monthly", "yearly"},
	RunE:      runStats,
}

func init() {
	cmd.RootCmd.AddCommand(StatsCmd)
}

// reportRow is one printable bucket of any report.
type reportRow struct {
	label string
	services.Counts
}

// runStats executes the logic for the stats command
func runStats(c *cobra.Command, args []string) error {
	period, value := "daily", ""
	if len(args) > 0 {
		period = args[0]
	}
	if len(args) > 1 {
		value = args[1]
	}

	cfg := cmd.Cfg
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := cmd.OpenDatabase()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)

	reports := services.NewReportService(repository.NewTrafficRepository(db), nil, services.ReportOptions{
		Location: loc,
		Locale:   services.NewLocale(cfg.App.Locale),
	})

	ctx := c.Context()
	rows, window, err := buildReport(ctx, reports, period, value)
	if err != nil {
		return fmt.Errorf("%s", apperrors.Message(err, err.Error()))
	}

	visitors, err := repository.NewVisitorRepository(db).Stats(ctx, window.Start, window.End)
	if err != nil {
		return fmt.Errorf("failed to load visitor statistics: %w", err)
	}

	fmt.Printf("Traffic %s report: %s - %s (%s)\n\n", period,
		window.Start.Format("2006-01-02 15:04"), window.End.Format("2006-01-02 15:04"), loc)
	printReport(os.Stdout, rows)

	fmt.Println()
	fmt.Printf("Visitors: %d (registered %d, guests %d)\n", visitors.Total, visitors.Registered, visitors.Guests)
	fmt.Printf("Unique IPs: %d, returning users: %d\n", visitors.UniqueIPs, visitors.ReturningUsers)
	fmt.Printf("Average time on site: %s (registered %s, guests %s)\n",
		services.FormatDuration(visitors.AvgTimeOnSite),
		services.FormatDuration(visitors.RegisteredAvg),
		services.FormatDuration(visitors.GuestAvg))
	return nil
}

// buildReport runs the report named by period and returns its rows with the window it covers.
func buildReport(ctx context.Context, reports *services.ReportService, period, value string) ([]reportRow, services.Window, error) {
	now := reports.Now()
	var rows []reportRow

	switch period {
	case "daily":
		window, err := services.ParseDay(value, now)
		if err != nil {
			return nil, window, err
		}
		stats, err := reports.Daily(ctx, value)
		for _, s := range stats {
			rows = append(rows, reportRow{fmt.Sprintf("%02d:00", s.Hour), s.Counts})
		}
		return rows, window, err
	case "weekly":
		window, _, _, err := services.ParseWeek(value, now)
		if err != nil {
			return nil, window, err
		}
		stats, err := reports.Weekly(ctx, value)
		for _, s := range stats {
			rows = append(rows, reportRow{s.DayOfWeek + " " + s.Day, s.Counts})
		}
		return rows, window, err
	case "monthly":
		window, err := services.ParseMonth(value, now)
		if err != nil {
			return nil, window, err
		}
		stats, err := reports.Monthly(ctx, value)
		for _, s := range stats {
			rows = append(rows, reportRow{s.Day, s.Counts})
		}
		return rows, window, err
	case "yearly":
		window, err := services.ParseYear(value, now)
		if err != nil {
			return nil, window, err
		}
		stats, err := reports.Yearly(ctx, value)
		for _, s := range stats {
			rows = append(rows, reportRow{strconv.Itoa(s.Month) + " " + s.MonthName, s.Counts})
		}
		return rows, window, err
	default:
		return nil, services.Window{}, fmt.Errorf("unknown period %q: use daily, weekly, monthly or yearly", period)
	}
}

func printReport(w io.Writer, rows []reportRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tREQUESTS\tREGISTERED\tGUESTS")
	total := 0
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", r.label, r.Count, r.UniqueRegisteredUsers, r.UniqueGuests)
		total += r.Count
	}
	fmt.Fprintf(tw, "TOTAL\t%d\t\t\n", total)
	tw.Flush()
}

