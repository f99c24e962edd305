package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/axellelanca/trafficstats/internal/cache"
	apperrors "github.com/axellelanca/trafficstats/internal/errors"
	"github.com/axellelanca/trafficstats/internal/models"
	"github.com/axellelanca/trafficstats/internal/repository"
)

// seedReportTraffic stores a small fixed data set around the first week of February 2025 (MSK).
func seedReportTraffic(t *testing.T, traffic repository.TrafficRepository, userID uint) {
	at := func(y int, m time.Month, d, h, mi int) time.Time { return time.Date(y, m, d, h, mi, 0, 0, msk) }
	rows := []models.TrafficStat{
		{IPAddress: "1.1.1.1", UserID: &userID, CreatedAt: at(2025, 2, 3, 0, 30)},
		{IPAddress: "2.2.2.2", CreatedAt: at(2025, 2, 3, 0, 45)},
		{IPAddress: "2.2.2.2", CreatedAt: at(2025, 2, 3, 0, 50)},
		{IPAddress: "1.1.1.1", UserID: &userID, CreatedAt: at(2025, 2, 3, 23, 10)},
		{IPAddress: "3.3.3.3", CreatedAt: at(2025, 2, 4, 10, 0)},
		{IPAddress: "4.4.4.4", CreatedAt: at(2025, 1, 31, 10, 0)},
		{IPAddress: "5.5.5.5", CreatedAt: at(2024, 2, 3, 10, 0)},
	}
	for _, row := range rows {
		addStat(t, traffic, row)
	}
}

func newReportFixture(t *testing.T, c cache.Cache, locale string) (*ReportService, repository.TrafficRepository) {
	db := newTestDB(t)
	users := repository.NewUserRepository(db)
	traffic := repository.NewTrafficRepository(db)
	u := addUser(t, users, "alice")
	seedReportTraffic(t, traffic, u.ID)

	svc := NewReportService(traffic, c, ReportOptions{
		Location: msk,
		Locale:   NewLocale(locale),
		CacheTTL: time.Hour,
		Now:      fixedClock(time.Date(2025, 2, 10, 12, 0, 0, 0, msk)),
	})
	return svc, traffic
}

func sumCounts[T any](rows []T, counts func(T) Counts) int {
	total := 0
	for _, r := range rows {
		total += counts(r).Count
	}
	return total
}

func TestDailyReport(t *testing.T) {
	svc, _ := newReportFixture(t, nil, "ru")

	stats, err := svc.Daily(context.Background(), "2025-02-03")
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if len(stats) != 24 {
		t.Fatalf("expected 24 hours, got %d", len(stats))
	}
	for h, s := range stats {
		if s.Hour != h {
			t.Errorf("row %d has hour %d", h, s.Hour)
		}
		if s.UniqueRegisteredUsers+s.UniqueGuests > s.Count {
			t.Errorf("hour %d: unique visitors exceed count: %+v", h, s)
		}
	}
	if want := (Counts{Count: 3, UniqueRegisteredUsers: 1, UniqueGuests: 1}); stats[0].Counts != want {
		t.Errorf("hour 0: got %+v, want %+v", stats[0].Counts, want)
	}
	if want := (Counts{Count: 1, UniqueRegisteredUsers: 1}); stats[23].Counts != want {
		t.Errorf("hour 23: got %+v, want %+v", stats[23].Counts, want)
	}
	if total := sumCounts(stats, func(s HourlyStat) Counts { return s.Counts }); total != 4 {
		t.Errorf("expected 4 requests on the day, got %d", total)
	}
}

func TestWeeklyReport(t *testing.T) {
	svc, _ := newReportFixture(t, nil, "ru")

	for _, week := range []string{"2025-06", "2025-W06"} {
		stats, err := svc.Weekly(context.Background(), week)
		if err != nil {
			t.Fatalf("Weekly(%s): %v", week, err)
		}
		if len(stats) != 7 {
			t.Fatalf("expected 7 days, got %d", len(stats))
		}
		if stats[0].Day != "3 февраля 2025 г." || stats[0].DayOfWeek != "понедельник" {
			t.Errorf("unexpected first day labels: %q %q", stats[0].Day, stats[0].DayOfWeek)
		}
		if stats[6].DayOfWeek != "воскресенье" {
			t.Errorf("expected week to end on Sunday, got %q", stats[6].DayOfWeek)
		}
		if stats[0].Count != 4 || stats[1].Count != 1 {
			t.Errorf("unexpected counts: %d, %d", stats[0].Count, stats[1].Count)
		}
		if stats[0].UniqueGuests != 1 || stats[0].UniqueRegisteredUsers != 1 {
			t.Errorf("unexpected unique counts on Monday: %+v", stats[0].Counts)
		}
	}
}

func TestMonthlyReport(t *testing.T) {
	svc, _ := newReportFixture(t, nil, "en")

	stats, err := svc.Monthly(context.Background(), "2025-02")
	if err != nil {
		t.Fatalf("Monthly: %v", err)
	}
	if len(stats) != 28 {
		t.Fatalf("expected 28 days in February 2025, got %d", len(stats))
	}
	if stats[0].Day != "1 February" || stats[27].Day != "28 February" {
		t.Errorf("unexpected labels %q .. %q", stats[0].Day, stats[27].Day)
	}
	if stats[2].Count != 4 || stats[3].Count != 1 {
		t.Errorf("unexpected counts on 3rd and 4th: %d, %d", stats[2].Count, stats[3].Count)
	}
	if total := sumCounts(stats, func(s DayStat) Counts { return s.Counts }); total != 5 {
		t.Errorf("expected 5 requests in February, got %d", total)
	}

	jan, err := svc.Monthly(context.Background(), "2025-01")
	if err != nil {
		t.Fatalf("Monthly(2025-01): %v", err)
	}
	if len(jan) != 31 || jan[30].Count != 1 {
		t.Errorf("expected the request of January 31st in the last bucket, got %d days, last=%+v", len(jan), jan[len(jan)-1])
	}
}

func TestYearlyReport(t *testing.T) {
	svc, _ := newReportFixture(t, nil, "ru")

	stats, err := svc.Yearly(context.Background(), "2025")
	if err != nil {
		t.Fatalf("Yearly: %v", err)
	}
	if len(stats) != 12 {
		t.Fatalf("expected 12 months, got %d", len(stats))
	}
	if stats[0].MonthName != "январь" || stats[1].MonthName != "февраль" || stats[1].Month != 2 {
		t.Errorf("unexpected month labels: %+v %+v", stats[0], stats[1])
	}
	// The February 2024 request must not leak into February 2025
	if stats[0].Count != 1 || stats[1].Count != 5 {
		t.Errorf("unexpected counts: jan=%d feb=%d", stats[0].Count, stats[1].Count)
	}
	if stats[1].UniqueGuests != 2 || stats[1].UniqueRegisteredUsers != 1 {
		t.Errorf("unexpected unique counts in February: %+v", stats[1].Counts)
	}

	prev, err := svc.Yearly(context.Background(), "2024")
	if err != nil {
		t.Fatalf("Yearly(2024): %v", err)
	}
	if prev[1].Count != 1 {
		t.Errorf("expected 1 request in February 2024, got %d", prev[1].Count)
	}
}

func TestReportErrors(t *testing.T) {
	svc, _ := newReportFixture(t, nil, "ru")
	ctx := context.Background()

	tests := []struct {
		name    string
		run     func() error
		kind    error
		message string
	}{
		{"bad date", func() error { _, err := svc.Daily(ctx, "2025/02/03"); return err }, apperrors.ErrInvalidPeriod, msgBadDate},
		{"bad week", func() error { _, err := svc.Weekly(ctx, "2025-60"); return err }, apperrors.ErrInvalidPeriod, msgBadWeek},
		{"bad month", func() error { _, err := svc.Monthly(ctx, "2025-13"); return err }, apperrors.ErrInvalidPeriod, msgBadMonth},
		{"bad year", func() error { _, err := svc.Yearly(ctx, "25"); return err }, apperrors.ErrInvalidPeriod, msgBadYear},
		{"empty day", func() error { _, err := svc.Daily(ctx, "2025-02-05"); return err }, apperrors.ErrNoData, "Нет данных по дате 2025-02-05"},
		{"empty week", func() error { _, err := svc.Weekly(ctx, "2025-10"); return err }, apperrors.ErrNoData, "Нет данных для недели 2025-10"},
		{"empty month", func() error { _, err := svc.Monthly(ctx, "2025-03"); return err }, apperrors.ErrNoData, "Нет данных для месяца 2025-03"},
		{"empty year", func() error { _, err := svc.Yearly(ctx, "2023"); return err }, apperrors.ErrNoData, "Нет данных для года 2023"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			if msg := apperrors.Message(err, ""); msg != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, msg)
			}
		})
	}
}

func TestReportCache(t *testing.T) {
	c := cache.NewMemory(0)
	defer c.Close()
	svc, traffic := newReportFixture(t, c, "ru")
	ctx := context.Background()

	if _, err := svc.Daily(ctx, "2025-02-03"); err != nil {
		t.Fatalf("Daily: %v", err)
	}
	addStat(t, traffic, models.TrafficStat{IPAddress: "6.6.6.6", CreatedAt: time.Date(2025, 2, 3, 5, 0, 0, 0, msk)})

	// The day is over, so the first result is served from the cache
	stats, err := svc.Daily(ctx, "2025-02-03")
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if stats[5].Count != 0 {
		t.Errorf("expected cached report, got %d requests at 05:00", stats[5].Count)
	}

	// The current day is never cached
	addStat(t, traffic, models.TrafficStat{IPAddress: "7.7.7.7", CreatedAt: time.Date(2025, 2, 10, 9, 0, 0, 0, msk)})
	if _, err := svc.Daily(ctx, ""); err != nil {
		t.Fatalf("Daily(today): %v", err)
	}
	addStat(t, traffic, models.TrafficStat{IPAddress: "8.8.8.8", CreatedAt: time.Date(2025, 2, 10, 9, 30, 0, 0, msk)})
	today, err := svc.Daily(ctx, "")
	if err != nil {
		t.Fatalf("Daily(today): %v", err)
	}
	if today[9].Count != 2 {
		t.Errorf("expected live report with 2 requests at 09:00, got %d", today[9].Count)
	}
}

// countingTraffic records how often the report window is queried.
type countingTraffic struct {
	repository.TrafficRepository
	windowQueries int
}

func (c *countingTraffic) ListPointsBetween(context.Context, time.Time, time.Time) ([]models.TrafficPoint, error) {
	c.windowQueries++
	return nil, nil
}

func TestMalformedPeriodSkipsQuery(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		run  func(*ReportService) error
	}{
		{"date with slashes", func(s *ReportService) error { _, err := s.Daily(ctx, "2025/02/03"); return err }},
		{"date out of range", func(s *ReportService) error { _, err := s.Daily(ctx, "2025-02-30"); return err }},
		{"week 60", func(s *ReportService) error { _, err := s.Weekly(ctx, "2025-60"); return err }},
		{"week 53 in a 52-week year", func(s *ReportService) error { _, err := s.Weekly(ctx, "2025-53"); return err }},
		{"month 13", func(s *ReportService) error { _, err := s.Monthly(ctx, "2025-13"); return err }},
		{"month words", func(s *ReportService) error { _, err := s.Monthly(ctx, "feb"); return err }},
		{"two-digit year", func(s *ReportService) error { _, err := s.Yearly(ctx, "25"); return err }},
		{"year with suffix", func(s *ReportService) error { _, err := s.Yearly(ctx, "2025x"); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traffic := &countingTraffic{}
			svc := NewReportService(traffic, nil, ReportOptions{Location: msk, Now: fixedClock(time.Date(2025, 2, 10, 12, 0, 0, 0, msk))})

			if err := tt.run(svc); !errors.Is(err, apperrors.ErrInvalidPeriod) {
				t.Fatalf("expected ErrInvalidPeriod, got %v", err)
			}
			if traffic.windowQueries != 0 {
				t.Errorf("expected no database query, got %d", traffic.windowQueries)
			}
		})
	}

	// control: a valid period does query
	traffic := &countingTraffic{}
	svc := NewReportService(traffic, nil, ReportOptions{Location: msk})
	_, _ = svc.Daily(ctx, "2025-02-03")
	if traffic.windowQueries != 1 {
		t.Errorf("expected one window query for a valid date, got %d", traffic.windowQueries)
	}
}
