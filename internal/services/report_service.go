package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/axellelanca/trafficstats/internal/cache"
	apperrors "github.com/axellelanca/trafficstats/internal/errors"
	"github.com/axellelanca/trafficstats/internal/models"
	"github.com/axellelanca/trafficstats/internal/repository"
)

// Counts are the figures reported for every bucket.
type Counts struct {
	Count                 int `json:"count"`
	UniqueRegisteredUsers int `json:"unique_registered_users"`
	UniqueGuests          int `json:"unique_guests"`
}

// HourlyStat is one hour of a daily report.
type HourlyStat struct {
	Hour int `json:"hour"`
	Counts
}

// WeekdayStat is one day of a weekly report.
type WeekdayStat struct {
	Day       string `json:"day"`
	DayOfWeek string `json:"day_of_week"`
	Counts
}

// DayStat is one day of a monthly report.
type DayStat struct {
	Day string `json:"day"`
	Counts
}

// MonthStat is one month of a yearly report.
type MonthStat struct {
	Month     int    `json:"month"`
	MonthName string `json:"month_name"`
	Counts
}

// bucket accumulates the rows that fall into one report slot.
type bucket struct {
	count  int
	users  map[uint]struct{}
	guests map[string]struct{}
}

func newBuckets(n int) []bucket {
	b := make([]bucket, n)
	for i := range b {
		b[i].users = make(map[uint]struct{})
		b[i].guests = make(map[string]struct{})
	}
	return b
}

func (b *bucket) add(p models.TrafficPoint) {
	b.count++
	if p.UserID != nil {
		b.users[*p.UserID] = struct{}{}
	} else {
		b.guests[p.IPAddress] = struct{}{}
	}
}

func (b *bucket) counts() Counts {
	return Counts{Count: b.count, UniqueRegisteredUsers: len(b.users), UniqueGuests: len(b.guests)}
}

// ReportOptions configures a ReportService.
type ReportOptions struct {
	Location *time.Location
	Locale   Locale
	// CacheTTL is how long reports of past windows are cached; 0 disables caching
	CacheTTL time.Duration
	// Now overrides the clock, mainly for tests
	Now func() time.Time
}

// ReportService builds the daily, weekly, monthly and yearly traffic reports.
// Each report is one window query followed by in-memory bucketing in the
// configured timezone.
type ReportService struct {
	traffic  repository.TrafficRepository
	cache    cache.Cache
	cacheTTL time.Duration
	loc      *time.Location
	locale   Locale
	now      func() time.Time
}

// NewReportService creates a ReportService. c may be nil.
func NewReportService(traffic repository.TrafficRepository, c cache.Cache, opts ReportOptions) *ReportService {
	s := &ReportService{
		traffic:  traffic,
		cache:    c,
		cacheTTL: opts.CacheTTL,
		loc:      opts.Location,
		locale:   opts.Locale,
		now:      opts.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.locale.tag.IsRoot() {
		s.locale = NewLocale("ru")
	}
	return s
}

// Now returns the current time in the report timezone.
func (s *ReportService) Now() time.Time {
	return s.now().In(s.loc)
}

// Daily returns 24 hourly buckets for the given YYYY-MM-DD day.
func (s *ReportService) Daily(ctx context.Context, date string) ([]HourlyStat, error) {
	now := s.Now()
	w, err := ParseDay(date, now)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("traffic:daily:%s:%s", s.locale.tag, w.Start.Format(time.RFC3339))
	return cachedReport(ctx, s, key, w, now, func() ([]HourlyStat, error) {
		points, err := s.points(ctx, w)
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			return nil, apperrors.NewUserError(apperrors.ErrNoData, "Нет данных по дате %s", w.Start.Format("2006-01-02"))
		}

		buckets := newBuckets(24)
		for _, p := range points {
			buckets[p.CreatedAt.In(s.loc).Hour()].add(p)
		}

		stats := make([]HourlyStat, 24)
		for h := range stats {
			stats[h] = HourlyStat{Hour: h, Counts: buckets[h].counts()}
		}
		return stats, nil
	})
}

// Weekly returns 7 daily buckets, Monday first, for the given ISO week.
func (s *ReportService) Weekly(ctx context.Context, week string) ([]WeekdayStat, error) {
	now := s.Now()
	w, year, num, err := ParseWeek(week, now)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("traffic:weekly:%s:%d-W%02d", s.locale.tag, year, num)
	return cachedReport(ctx, s, key, w, now, func() ([]WeekdayStat, error) {
		points, err := s.points(ctx, w)
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			return nil, apperrors.NewUserError(apperrors.ErrNoData, "Нет данных для недели %d-%02d", year, num)
		}

		buckets := newBuckets(7)
		for _, p := range points {
			if i := dayIndex(w.Start, p.CreatedAt.In(s.loc)); i >= 0 && i < 7 {
				buckets[i].add(p)
			}
		}

		stats := make([]WeekdayStat, 7)
		for i := range stats {
			day := w.Start.AddDate(0, 0, i)
			stats[i] = WeekdayStat{
				Day:       s.locale.LongDate(day),
				DayOfWeek: s.locale.Weekday(day.Weekday()),
				Counts:    buckets[i].counts(),
			}
		}
		return stats, nil
	})
}

// Monthly returns one bucket per day of the given YYYY-MM month.
func (s *ReportService) Monthly(ctx context.Context, month string) ([]DayStat, error) {
	now := s.Now()
	w, err := ParseMonth(month, now)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("traffic:monthly:%s:%s", s.locale.tag, w.Start.Format("2006-01"))
	return cachedReport(ctx, s, key, w, now, func() ([]DayStat, error) {
		points, err := s.points(ctx, w)
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			return nil, apperrors.NewUserError(apperrors.ErrNoData, "Нет данных для месяца %s", w.Start.Format("2006-01"))
		}

		days := w.End.AddDate(0, 0, -1).Day()
		buckets := newBuckets(days)
		for _, p := range points {
			buckets[p.CreatedAt.In(s.loc).Day()-1].add(p)
		}

		stats := make([]DayStat, days)
		for i := range stats {
			stats[i] = DayStat{
				Day:    s.locale.DayMonth(w.Start.AddDate(0, 0, i)),
				Counts: buckets[i].counts(),
			}
		}
		return stats, nil
	})
}

// Yearly returns 12 monthly buckets for the given YYYY year.
func (s *ReportService) Yearly(ctx context.Context, year string) ([]MonthStat, error) {
	now := s.Now()
	w, err := ParseYear(year, now)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("traffic:yearly:%s:%d", s.locale.tag, w.Start.Year())
	return cachedReport(ctx, s, key, w, now, func() ([]MonthStat, error) {
		points, err := s.points(ctx, w)
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			return nil, apperrors.NewUserError(apperrors.ErrNoData, "Нет данных для года %d", w.Start.Year())
		}

		buckets := newBuckets(12)
		for _, p := range points {
			buckets[p.CreatedAt.In(s.loc).Month()-1].add(p)
		}

		stats := make([]MonthStat, 12)
		for i := range stats {
			m := time.Month(i + 1)
			stats[i] = MonthStat{Month: int(m), MonthName: s.locale.MonthName(m), Counts: buckets[i].counts()}
		}
		return stats, nil
	})
}

func (s *ReportService) points(ctx context.Context, w Window) ([]models.TrafficPoint, error) {
	return s.traffic.ListPointsBetween(ctx, w.Start, w.End)
}

// cachedReport serves the report of a window that has already ended from the
// cache, building and storing it on a miss. Cache failures only cost a rebuild.
func cachedReport[T any](ctx context.Context, s *ReportService, key string, w Window, now time.Time, build func() ([]T, error)) ([]T, error) {
	if s.cache == nil || s.cacheTTL <= 0 || !w.Ended(now) {
		return build()
	}

	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		slog.Warn("report cache read failed", slog.String("key", key), slog.Any("error", err))
	} else if ok {
		var stats []T
		if err := json.Unmarshal([]byte(raw), &stats); err == nil {
			return stats, nil
		}
	}

	stats, err := build()
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(stats); err == nil {
		if err := s.cache.Set(ctx, key, string(raw), s.cacheTTL); err != nil {
			slog.Warn("report cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return stats, nil
}

// dayIndex counts calendar days from start to t, ignoring DST shifts.
func dayIndex(start, t time.Time) int {
	a := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
