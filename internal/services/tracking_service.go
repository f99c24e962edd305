package services

import (
	"context"
	"fmt"
	"time"

	"github.com/axellelanca/trafficstats/internal/models"
	"github.com/axellelanca/trafficstats/internal/repository"
	"github.com/google/uuid"
)

// Recorder persists tracked requests.
type Recorder interface {
	Record(ctx context.Context, event models.TrafficEvent) error
}

// SyncRecorder writes every event in the calling goroutine.
type SyncRecorder struct {
	traffic repository.TrafficRepository
}

// NewSyncRecorder creates a SyncRecorder.
func NewSyncRecorder(traffic repository.TrafficRepository) *SyncRecorder {
	return &SyncRecorder{traffic: traffic}
}

// Record inserts the event as a TrafficStat row.
func (r *SyncRecorder) Record(ctx context.Context, event models.TrafficEvent) error {
	return r.traffic.CreateTrafficStat(ctx, event.ToStat())
}

// SessionRequest describes the client of one tracked request.
type SessionRequest struct {
	Key       string // session cookie value, empty when absent
	IPAddress string
	UserAgent string
	UserID    *uint
}

// TrackingService keeps the visitor session of every tracked request up to date.
type TrackingService struct {
	visitors repository.VisitorRepository
	timeout  time.Duration
	now      func() time.Time
	newKey   func() string
}

// NewTrackingService creates a TrackingService; sessions idle for longer than
// timeout are replaced by a new one.
func NewTrackingService(visitors repository.VisitorRepository, timeout time.Duration) *TrackingService {
	return &TrackingService{
		visitors: visitors,
		timeout:  timeout,
		now:      time.Now,
		newKey:   func() string { return uuid.NewString() },
	}
}

// EnsureSession returns the session key to use for the request. An existing
// live session is touched and gets the authenticated user attached; a missing,
// unknown, ended or expired one is replaced by a new visitor with a fresh key.
// rotated is true when the caller must send a new session cookie.
func (s *TrackingService) EnsureSession(ctx context.Context, req SessionRequest) (key string, rotated bool, err error) {
	now := s.now().UTC()

	if req.Key != "" {
		visitor, err := s.visitors.GetBySessionKey(ctx, req.Key)
		switch {
		case err == nil:
			if !visitor.SessionEnded() && !visitor.SessionExpired(now, s.timeout) {
				var attach *uint
				if req.UserID != nil && (visitor.UserID == nil || *visitor.UserID != *req.UserID) {
					attach = req.UserID
				}
				if err := s.visitors.Touch(ctx, visitor.ID, now, attach); err != nil {
					return "", false, err
				}
				return req.Key, false, nil
			}
		case !repository.IsNotFound(err):
			return "", false, fmt.Errorf("failed to load session: %w", err)
		}
	}

	key = s.newKey()
	visitor := &models.Visitor{
		SessionKey:   key,
		UserID:       req.UserID,
		IPAddress:    req.IPAddress,
		UserAgent:    models.Truncate(req.UserAgent, models.MaxTextLength),
		StartTime:    now,
		LastActivity: now,
	}
	if err := s.visitors.Create(ctx, visitor); err != nil {
		return "", false, err
	}
	return key, true, nil
}
