package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/axellelanca/trafficstats/internal/models"
	"gorm.io/gorm"
)

// RequestFilter narrows the request log of a user.
// Zero values mean "no restriction".
type RequestFilter struct {
	From time.Time // inclusive
	To   time.Time // inclusive
	URL  string    // case-insensitive substring
}

// TrafficRepository defines data access for the tracked requests.
type TrafficRepository interface {
	CreateTrafficStat(ctx context.Context, stat *models.TrafficStat) error
	ListPointsBetween(ctx context.Context, from, to time.Time) ([]models.TrafficPoint, error)
	ActiveSessions(ctx context.Context, since time.Time) ([]models.SessionActivity, error)
	ListUserRequests(ctx context.Context, userID uint, filter RequestFilter, limit, offset int) ([]models.TrafficStat, int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// GormTrafficRepository is the GORM implementation of TrafficRepository.
type GormTrafficRepository struct {
	db *gorm.DB
}

// NewTrafficRepository creates and returns a new GormTrafficRepository.
func NewTrafficRepository(db *gorm.DB) *GormTrafficRepository {
	return &GormTrafficRepository{db: db}
}

// CreateTrafficStat inserts a tracked request.
func (r *GormTrafficRepository) CreateTrafficStat(ctx context.Context, stat *models.TrafficStat) error {
	if stat.CreatedAt.IsZero() {
		stat.CreatedAt = time.Now()
	}
	stat.CreatedAt = stat.CreatedAt.UTC()
	if err := r.db.WithContext(ctx).Create(stat).Error; err != nil {
		return fmt.Errorf("failed to create traffic stat: %w", err)
	}
	return nil
}

// ListPointsBetween returns the report projection of every row created in [from, to).
func (r *GormTrafficRepository) ListPointsBetween(ctx context.Context, from, to time.Time) ([]models.TrafficPoint, error) {
	var points []models.TrafficPoint
	err := r.db.WithContext(ctx).
		Model(&models.TrafficStat{}).
		Select("created_at", "user_id", "ip_address", "session_id").
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Order("created_at").
		Scan(&points).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list traffic between %s and %s: %w",
			from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}
	return points, nil
}

// ActiveSessions returns every session with traffic since the given time, together
// with the time of its latest request.
func (r *GormTrafficRepository) ActiveSessions(ctx context.Context, since time.Time) ([]models.SessionActivity, error) {
	var rows []models.TrafficPoint
	err := r.db.WithContext(ctx).
		Model(&models.TrafficStat{}).
		Select("session_id", "created_at").
		Where("created_at >= ? AND session_id IS NOT NULL", since.UTC()).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}

	latest := make(map[string]time.Time)
	order := make([]string, 0)
	for _, row := range rows {
		if row.SessionID == nil || *row.SessionID == "" {
			continue
		}
		key := *row.SessionID
		last, seen := latest[key]
		if !seen {
			order = append(order, key)
		}
		if !seen || row.CreatedAt.After(last) {
			latest[key] = row.CreatedAt
		}
	}

	sessions := make([]models.SessionActivity, 0, len(order))
	for _, key := range order {
		sessions = append(sessions, models.SessionActivity{SessionID: key, LastActive: latest[key]})
	}
	return sessions, nil
}

// ListUserRequests returns one page of the requests made by a user, newest first,
// and the total number of matching rows. A request belongs to the user when it
// carries their id or was made in one of their visitor sessions.
func (r *GormTrafficRepository) ListUserRequests(ctx context.Context, userID uint, filter RequestFilter, limit, offset int) ([]models.TrafficStat, int64, error) {
	// A GORM chain must not be reused after Count, so each query gets a fresh builder
	query := func() *gorm.DB {
		sessions := r.db.Model(&models.Visitor{}).Select("session_key").Where("user_id = ?", userID)
		q := r.db.WithContext(ctx).Model(&models.TrafficStat{}).
			Where(r.db.Where("session_id IN (?)", sessions).Or("user_id = ?", userID))
		if !filter.From.IsZero() {
			q = q.Where("created_at >= ?", filter.From.UTC())
		}
		if !filter.To.IsZero() {
			q = q.Where("created_at <= ?", filter.To.UTC())
		}
		if filter.URL != "" {
			q = q.Where("LOWER(url) LIKE ?", "%"+strings.ToLower(filter.URL)+"%")
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count requests for user %d: %w", userID, err)
	}

	var stats []models.TrafficStat
	err := query().
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&stats).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list requests for user %d: %w", userID, err)
	}
	return stats, total, nil
}

// DeleteOlderThan removes every row created before cutoff and returns how many were deleted.
func (r *GormTrafficRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&models.TrafficStat{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete traffic older than %s: %w", cutoff.Format(time.RFC3339), result.Error)
	}
	return result.RowsAffected, nil
}
