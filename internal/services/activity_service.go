package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/axellelanca/trafficstats/internal/errors"
	"github.com/axellelanca/trafficstats/internal/repository"
)

// EventActivity tags the rows produced by activity pings.
const EventActivity = "activity"

// ActivityService handles the client-side activity pings.
type ActivityService struct {
	visitors repository.VisitorRepository
	now      func() time.Time
}

// NewActivityService creates an ActivityService.
func NewActivityService(visitors repository.VisitorRepository) *ActivityService {
	return &ActivityService{visitors: visitors, now: time.Now}
}

// ParseActivityTime validates the last_activity_time field of a ping. Timestamps
// without an offset are read in loc.
func ParseActivityTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, apperrors.NewUserError(apperrors.ErrInvalidActivityTime, "Поле last_activity_time обязательно")
	}
	t, err := parseISOTime(raw, loc)
	if err != nil {
		return time.Time{}, apperrors.NewUserError(apperrors.ErrInvalidActivityTime, "Некорректный формат last_activity_time")
	}
	return t, nil
}

// Touch advances the last activity of the session to the client's time, clamped
// to the lifetime of the session so that a skewed client clock cannot move it
// before the session started or into the future. Unknown sessions are ignored.
func (s *ActivityService) Touch(ctx context.Context, sessionKey string, at time.Time) error {
	if sessionKey == "" {
		return nil
	}
	visitor, err := s.visitors.GetBySessionKey(ctx, sessionKey)
	if repository.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	now := s.now().UTC()
	at = at.UTC()
	if at.After(now) {
		at = now
	}
	if at.Before(visitor.StartTime) {
		at = visitor.StartTime
	}
	return s.visitors.Touch(ctx, visitor.ID, at, nil)
}

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseISOTime accepts the ISO 8601 timestamps browsers and Python clients send.
// Fractional seconds are accepted by every layout; values without an offset are
// read in loc.
func parseISOTime(raw string, loc *time.Location) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
