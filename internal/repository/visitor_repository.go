package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/axellelanca/trafficstats/internal/models"
	"gorm.io/gorm"
)

// VisitorRepository defines data access for visitor sessions.
type VisitorRepository interface {
	Create(ctx context.Context, visitor *models.Visitor) error
	GetBySessionKey(ctx context.Context, key string) (*models.Visitor, error)
	Touch(ctx context.Context, id uint, lastActivity time.Time, userID *uint) error
	ListBySessionKeys(ctx context.Context, keys []string) ([]models.Visitor, error)
	LatestStarts(ctx context.Context) (map[uint]time.Time, error)
	Stats(ctx context.Context, from, to time.Time) (models.VisitorStats, error)
	UserStats(ctx context.Context, from, to time.Time) (map[uint]models.UserVisitStats, error)
	CloseIdle(ctx context.Context, cutoff time.Time) ([]models.Visitor, error)
}

// GormVisitorRepository is the GORM implementation of VisitorRepository.
type GormVisitorRepository struct {
	db *gorm.DB
}

// NewVisitorRepository creates and returns a new GormVisitorRepository.
func NewVisitorRepository(db *gorm.DB) *GormVisitorRepository {
	return &GormVisitorRepository{db: db}
}

// Create inserts a new visitor session.
func (r *GormVisitorRepository) Create(ctx context.Context, visitor *models.Visitor) error {
	visitor.StartTime = visitor.StartTime.UTC()
	visitor.LastActivity = visitor.LastActivity.UTC()
	if err := r.db.WithContext(ctx).Create(visitor).Error; err != nil {
		return fmt.Errorf("failed to create visitor: %w", err)
	}
	return nil
}

// GetBySessionKey returns the visitor of a session, or gorm.ErrRecordNotFound.
func (r *GormVisitorRepository) GetBySessionKey(ctx context.Context, key string) (*models.Visitor, error) {
	var visitor models.Visitor
	if err := r.db.WithContext(ctx).Where("session_key = ?", key).First(&visitor).Error; err != nil {
		return nil, err
	}
	return &visitor, nil
}

// Touch advances the last activity of a session and attaches userID when it is set.
func (r *GormVisitorRepository) Touch(ctx context.Context, id uint, lastActivity time.Time, userID *uint) error {
	updates := map[string]any{"last_activity": lastActivity.UTC()}
	if userID != nil {
		updates["user_id"] = *userID
	}
	if err := r.db.WithContext(ctx).Model(&models.Visitor{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update visitor %d: %w", id, err)
	}
	return nil
}

// ListBySessionKeys returns the visitors of the given sessions with their users loaded.
func (r *GormVisitorRepository) ListBySessionKeys(ctx context.Context, keys []string) ([]models.Visitor, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var visitors []models.Visitor
	if err := r.db.WithContext(ctx).Preload("User").Where("session_key IN ?", keys).Find(&visitors).Error; err != nil {
		return nil, fmt.Errorf("failed to list visitors by session: %w", err)
	}
	return visitors, nil
}

// LatestStarts returns the start time of the most recent session of every user
// who has visited, keyed by user id.
func (r *GormVisitorRepository) LatestStarts(ctx context.Context) (map[uint]time.Time, error) {
	latest := r.db.Model(&models.Visitor{}).
		Select("user_id, MAX(start_time) AS max_start").
		Where("user_id IS NOT NULL").
		Group("user_id")

	var visitors []models.Visitor
	err := r.db.WithContext(ctx).
		Select("visitors.user_id, visitors.start_time").
		Joins("JOIN (?) AS latest ON visitors.user_id = latest.user_id AND visitors.start_time = latest.max_start", latest).
		Find(&visitors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get latest visitor starts: %w", err)
	}

	starts := make(map[uint]time.Time, len(visitors))
	for _, v := range visitors {
		if v.UserID != nil {
			starts[*v.UserID] = v.StartTime
		}
	}
	return starts, nil
}

func (r *GormVisitorRepository) startedBetween(ctx context.Context, from, to time.Time) ([]models.Visitor, error) {
	var visitors []models.Visitor
	err := r.db.WithContext(ctx).
		Where("start_time >= ? AND start_time < ?", from.UTC(), to.UTC()).
		Find(&visitors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list visitors: %w", err)
	}
	return visitors, nil
}

// Stats summarizes the sessions started in [from, to).
func (r *GormVisitorRepository) Stats(ctx context.Context, from, to time.Time) (models.VisitorStats, error) {
	visitors, err := r.startedBetween(ctx, from, to)
	if err != nil {
		return models.VisitorStats{}, err
	}

	var stats models.VisitorStats
	var total, registered, guests time.Duration
	ips := make(map[string]struct{})
	visits := make(map[uint]int)
	for i := range visitors {
		v := &visitors[i]
		d := v.TimeOnSite()
		total += d
		ips[v.IPAddress] = struct{}{}
		if v.UserID != nil {
			stats.Registered++
			registered += d
			visits[*v.UserID]++
		} else {
			stats.Guests++
			guests += d
		}
	}
	stats.Total = len(visitors)
	stats.UniqueIPs = len(ips)
	for _, n := range visits {
		if n > 1 {
			stats.ReturningUsers++
		}
	}
	stats.AvgTimeOnSite = average(total, stats.Total)
	stats.RegisteredAvg = average(registered, stats.Registered)
	stats.GuestAvg = average(guests, stats.Guests)
	return stats, nil
}

// UserStats returns, per user, the number of sessions started in [from, to) and
// their average time on site.
func (r *GormVisitorRepository) UserStats(ctx context.Context, from, to time.Time) (map[uint]models.UserVisitStats, error) {
	visitors, err := r.startedBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	totals := make(map[uint]time.Duration)
	stats := make(map[uint]models.UserVisitStats)
	for i := range visitors {
		v := &visitors[i]
		if v.UserID == nil {
			continue
		}
		s := stats[*v.UserID]
		s.UserID = *v.UserID
		s.VisitCount++
		stats[*v.UserID] = s
		totals[*v.UserID] += v.TimeOnSite()
	}
	for id, s := range stats {
		s.TimeOnSite = average(totals[id], s.VisitCount)
		stats[id] = s
	}
	return stats, nil
}

// CloseIdle ends every open session whose last activity is before cutoff. The end
// time is the last activity, not the time of the sweep.
func (r *GormVisitorRepository) CloseIdle(ctx context.Context, cutoff time.Time) ([]models.Visitor, error) {
	var idle []models.Visitor
	err := r.db.WithContext(ctx).
		Where("end_time IS NULL AND last_activity < ?", cutoff.UTC()).
		Find(&idle).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list idle visitors: %w", err)
	}
	if len(idle) == 0 {
		return nil, nil
	}

	ids := make([]uint, len(idle))
	for i := range idle {
		ids[i] = idle[i].ID
		end := idle[i].LastActivity
		idle[i].EndTime = &end
	}
	err = r.db.WithContext(ctx).Model(&models.Visitor{}).
		Where("id IN ?", ids).
		UpdateColumn("end_time", gorm.Expr("last_activity")).Error
	if err != nil {
		return nil, fmt.Errorf("failed to close idle visitors: %w", err)
	}
	return idle, nil
}

func average(total time.Duration, n int) time.Duration {
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}
