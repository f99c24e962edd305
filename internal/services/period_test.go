package services

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/axellelanca/trafficstats/internal/errors"
)

func TestParseDay(t *testing.T) {
	now := time.Date(2025, 2, 10, 12, 0, 0, 0, msk)

	tests := []struct {
		value     string
		wantStart time.Time
		wantErr   bool
	}{
		{value: "", wantStart: time.Date(2025, 2, 10, 0, 0, 0, 0, msk)},
		{value: "2025-02-03", wantStart: time.Date(2025, 2, 3, 0, 0, 0, 0, msk)},
		{value: "2024-2-29", wantStart: time.Date(2024, 2, 29, 0, 0, 0, 0, msk)},
		{value: "2025-02-29", wantErr: true},
		{value: "2025-13-01", wantErr: true},
		{value: "2025-02-03T00:00", wantErr: true},
		{value: "03.02.2025", wantErr: true},
		{value: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			w, err := ParseDay(tt.value, now)
			if tt.wantErr {
				if !errors.Is(err, apperrors.ErrInvalidPeriod) {
					t.Fatalf("expected ErrInvalidPeriod, got %v", err)
				}
				if msg := apperrors.Message(err, ""); msg != msgBadDate {
					t.Errorf("unexpected message %q", msg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !w.Start.Equal(tt.wantStart) || !w.End.Equal(tt.wantStart.AddDate(0, 0, 1)) {
				t.Errorf("got window %v - %v", w.Start, w.End)
			}
		})
	}
}

func TestParseWeek(t *testing.T) {
	now := time.Date(2025, 2, 5, 12, 0, 0, 0, msk) // Wednesday of ISO week 6

	tests := []struct {
		value      string
		wantMonday time.Time
		wantYear   int
		wantWeek   int
		wantErr    bool
	}{
		{value: "", wantMonday: time.Date(2025, 2, 3, 0, 0, 0, 0, msk), wantYear: 2025, wantWeek: 6},
		{value: "2025-06", wantMonday: time.Date(2025, 2, 3, 0, 0, 0, 0, msk), wantYear: 2025, wantWeek: 6},
		{value: "2025-W06", wantMonday: time.Date(2025, 2, 3, 0, 0, 0, 0, msk), wantYear: 2025, wantWeek: 6},
		{value: "2025-01", wantMonday: time.Date(2024, 12, 30, 0, 0, 0, 0, msk), wantYear: 2025, wantWeek: 1},
		{value: "2020-53", wantMonday: time.Date(2020, 12, 28, 0, 0, 0, 0, msk), wantYear: 2020, wantWeek: 53},
		{value: "2021-53", wantErr: true},
		{value: "2025-00", wantErr: true},
		{value: "2025", wantErr: true},
		{value: "2025-W", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			w, year, week, err := ParseWeek(tt.value, now)
			if tt.wantErr {
				if !errors.Is(err, apperrors.ErrInvalidPeriod) {
					t.Fatalf("expected ErrInvalidPeriod, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !w.Start.Equal(tt.wantMonday) || w.Start.Weekday() != time.Monday {
				t.Errorf("expected Monday %v, got %v", tt.wantMonday, w.Start)
			}
			if !w.End.Equal(tt.wantMonday.AddDate(0, 0, 7)) {
				t.Errorf("expected 7-day window, got end %v", w.End)
			}
			if year != tt.wantYear || week != tt.wantWeek {
				t.Errorf("expected %d-W%02d, got %d-W%02d", tt.wantYear, tt.wantWeek, year, week)
			}
		})
	}
}

func TestParseMonthAndYear(t *testing.T) {
	now := time.Date(2025, 2, 10, 12, 0, 0, 0, msk)

	w, err := ParseMonth("", now)
	if err != nil || !w.Start.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, msk)) || !w.End.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, msk)) {
		t.Errorf("current month: got %v - %v (%v)", w.Start, w.End, err)
	}
	w, err = ParseMonth("2024-12", now)
	if err != nil || !w.End.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, msk)) {
		t.Errorf("december: got %v - %v (%v)", w.Start, w.End, err)
	}
	for _, bad := range []string{"2025-13", "2025-00", "2025", "2025-02-01", "feb"} {
		if _, err := ParseMonth(bad, now); !errors.Is(err, apperrors.ErrInvalidPeriod) {
			t.Errorf("ParseMonth(%q): expected ErrInvalidPeriod, got %v", bad, err)
		}
	}

	w, err = ParseYear("2024", now)
	if err != nil || !w.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, msk)) || !w.End.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, msk)) {
		t.Errorf("year: got %v - %v (%v)", w.Start, w.End, err)
	}
	for _, bad := range []string{"24", "0000", "2024-01", "year"} {
		if _, err := ParseYear(bad, now); !errors.Is(err, apperrors.ErrInvalidPeriod) {
			t.Errorf("ParseYear(%q): expected ErrInvalidPeriod, got %v", bad, err)
		}
	}
}

func TestWindowEnded(t *testing.T) {
	w := Window{Start: time.Date(2025, 2, 3, 0, 0, 0, 0, msk), End: time.Date(2025, 2, 4, 0, 0, 0, 0, msk)}
	if w.Ended(w.End.Add(-time.Second)) {
		t.Error("window is still open one second before its end")
	}
	if !w.Ended(w.End) {
		t.Error("window is over at its end")
	}
}
