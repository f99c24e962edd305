package services

import (
	"regexp"
	"strconv"
	"time"

	apperrors "github.com/axellelanca/trafficstats/internal/errors"
)

const (
	msgBadDate  = "Неверный формат даты. Используйте YYYY-MM-DD"
	msgBadWeek  = "Неверный формат недели. Используйте YYYY-WW"
	msgBadMonth = "Неверный формат месяца. Используйте YYYY-MM"
	msgBadYear  = "Неверный формат года. Используйте YYYY"
)

var (
	dateRe  = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	weekRe  = regexp.MustCompile(`^(\d{4})-W?(\d{1,2})$`)
	monthRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
	yearRe  = regexp.MustCompile(`^(\d{4})$`)
)

// Window is a half-open time range [Start, End) in the report timezone.
type Window struct {
	Start time.Time
	End   time.Time
}

// Ended reports whether the whole window lies before now.
func (w Window) Ended(now time.Time) bool {
	return !w.End.After(now)
}

// ParseDay parses a YYYY-MM-DD value into the window of that day.
// An empty value selects the current day of now.
func ParseDay(value string, now time.Time) (Window, error) {
	loc := now.Location()
	var day time.Time
	if value == "" {
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	} else {
		m := dateRe.FindStringSubmatch(value)
		if m == nil {
			return Window{}, apperrors.NewUserError(apperrors.ErrInvalidPeriod, msgBadDate)
		}
		y, mo, d := atoi(m[1]), atoi(m[2]), atoi(m[3])
		day = time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)
		// time.Date normalizes 2025-02-30 into March; reject it instead
		if y < 1 || day.Year() != y || int(day.Month()) != mo || day.Day() != d {
			return Window{}, apperrors.NewUserError(apperrors.ErrInvalidPeriod, msgBadDate)
		}
	}
	return Window{Start: day, End: day.AddDate(0, 0, 1)}, nil
}

// ParseWeek parses an ISO week (YYYY-WW or YYYY-Www) into its Monday-to-Sunday window.
// An empty value selects the ISO week containing now. The returned year and week are
// the ISO ones.
func ParseWeek(value string, now time.Time) (Window, int, int, error) {
	loc := now.Location()
	var year, week int
	if value == "" {
		year, week = now.ISOWeek()
	} else {
		m := weekRe.FindStringSubmatch(value)
		if m == nil {
			return Window{}, 0, 0, apperrors.NewUserError(apperrors.ErrInvalidPeriod, msgBadWeek)
		}
		year, week = atoi(m[1]), atoi(m[2])
		if year < 1 || week < 1 || week > isoWeeksInYear(year) {
			return Window{}, 0, 0, apperrors.NewUserError(apperrors.ErrInvalidPeriod, msgBadWeek)
		}
	}
	monday := isoWeekStart(year, week, loc)
	return Window{Start: monday, End: monday.AddDate(0, 0, 7)}, year, week, nil
}

// ParseMonth parses a YYYY-MM value into the window of that month.
// An empty value selects the month of now.
func ParseMonth(value string, now time.Time) (Window, error) {
	loc := now.Location()
	year, month := now.Year(), int(now.Month())
	if value != "" {
		m := monthRe.FindStringSubmatch(value)
		if m == nil {
			return Window{}, apperrors.NewUserError(apperrors.ErrInvalidPeriod, msgBadMonth)
		}
		year, month = atoi(m[1]), atoi(m[2])
		if year < 1 || month < 1 || month > 12 {
			return Window{}, apperrors.NewUserError(apperrors.ErrInvalidPeriod, msgBadMonth)
		}
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return Window{Start: first, End: first.AddDate(0, 1, 0)}, nil
}

// ParseYear parses a YYYY value into the window of that year.
// An empty value selects the year of now.
func ParseYear(value string, now time.Time) (Window, error) {
	loc := now.Location()
	year := now.Year()
	if value != "" {
		m := yearRe.FindStringSubmatch(value)
		if m == nil {
			return Window{}, apperrors.NewUserError(apperrors.ErrInvalidPeriod, msgBadYear)
		}
		year = atoi(m[1])
		if year < 1 {
			return Window{}, apperrors.NewUserError(apperrors.ErrInvalidPeriod, msgBadYear)
		}
	}
	first := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	return Window{Start: first, End: first.AddDate(1, 0, 0)}, nil
}

// isoWeekStart returns the Monday of the given ISO week. Week 1 is the week
// containing January 4th.
func isoWeekStart(year, week int, loc *time.Location) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	offset := (int(jan4.Weekday()) + 6) % 7 // days since Monday
	return jan4.AddDate(0, 0, -offset+(week-1)*7)
}

// isoWeeksInYear returns 52 or 53. December 28th always falls in the last ISO week.
func isoWeeksInYear(year int) int {
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s) // inputs are already matched against \d+
	return n
}
