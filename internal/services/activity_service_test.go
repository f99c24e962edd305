package services

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/axellelanca/trafficstats/internal/errors"
	"github.com/axellelanca/trafficstats/internal/models"
	"github.com/axellelanca/trafficstats/internal/repository"
)

func TestParseActivityTime(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Time
		message string
	}{
		{raw: "2025-02-03T10:00:00Z", want: time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)},
		{raw: "2025-02-03T10:00:00.123Z", want: time.Date(2025, 2, 3, 10, 0, 0, 123000000, time.UTC)},
		{raw: "2025-02-03T13:00:00+03:00", want: time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)},
		{raw: "2025-02-03T13:00:00", want: time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)},
		{raw: "", message: "Поле last_activity_time обязательно"},
		{raw: "yesterday", message: "Некорректный формат last_activity_time"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseActivityTime(tt.raw, msk)
			if tt.message != "" {
				if !errors.Is(err, apperrors.ErrInvalidActivityTime) || apperrors.Message(err, "") != tt.message {
					t.Fatalf("expected %q, got %v", tt.message, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActivityTouchClampsClientTime(t *testing.T) {
	db := newTestDB(t)
	visitors := repository.NewVisitorRepository(db)
	svc := NewActivityService(visitors)
	ctx := context.Background()

	start := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	now := start.Add(20 * time.Minute)
	svc.now = fixedClock(now)
	if err := visitors.Create(ctx, &models.Visitor{SessionKey: "s", StartTime: start, LastActivity: start}); err != nil {
		t.Fatalf("create visitor: %v", err)
	}

	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"within session", start.Add(5 * time.Minute), start.Add(5 * time.Minute)},
		{"in the future", now.Add(time.Hour), now},
		{"before start", start.Add(-time.Hour), start},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.Touch(ctx, "s", tt.at); err != nil {
				t.Fatalf("Touch: %v", err)
			}
			v, err := visitors.GetBySessionKey(ctx, "s")
			if err != nil {
				t.Fatalf("GetBySessionKey: %v", err)
			}
			if !v.LastActivity.Equal(tt.want) {
				t.Errorf("expected last activity %v, got %v", tt.want, v.LastActivity)
			}
		})
	}

	if err := svc.Touch(ctx, "unknown", now); err != nil {
		t.Errorf("unknown sessions should be ignored, got %v", err)
	}
}
