package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/axellelanca/trafficstats/internal/models"
	"github.com/axellelanca/trafficstats/internal/repository"
)

// visitStatsPeriod is how far back visit_count and avg_time_on_site look.
const visitStatsPeriod = 7 * 24 * time.Hour

// RegisteredUser is one row of the active users view.
type RegisteredUser struct {
	ID            uint   `json:"id"`
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	Email         string `json:"email"`
	IsOnline      bool   `json:"is_online"`
	TimeOnSite    string `json:"time_on_site"`
	VisitCount    int    `json:"visit_count"`
	AvgTimeOnSite string `json:"avg_time_on_site"`
	StartTime     string `json:"start_time"`
}

// ActiveUsers is the response of the active users view.
type ActiveUsers struct {
	RegisteredUsers  []RegisteredUser `json:"registered_users"`
	OnlineUsersCount int              `json:"online_users_count"`
}

// UserActivityService reports which registered users are online and how they use the site.
type UserActivityService struct {
	users          repository.UserRepository
	visitors       repository.VisitorRepository
	traffic        repository.TrafficRepository
	onlineWindow   time.Duration
	sessionTimeout time.Duration
	loc            *time.Location
	now            func() time.Time
}

// NewUserActivityService creates a UserActivityService.
func NewUserActivityService(users repository.UserRepository, visitors repository.VisitorRepository,
	traffic repository.TrafficRepository, onlineWindow, sessionTimeout time.Duration, loc *time.Location) *UserActivityService {
	if loc == nil {
		loc = time.UTC
	}
	return &UserActivityService{
		users:          users,
		visitors:       visitors,
		traffic:        traffic,
		onlineWindow:   onlineWindow,
		sessionTimeout: sessionTimeout,
		loc:            loc,
		now:            time.Now,
	}
}

type onlineState struct {
	online     bool
	timeOnSite time.Duration
}

// onlineUsers returns the users with a live session that produced traffic within
// the online window, keyed by user id.
func (s *UserActivityService) onlineUsers(ctx context.Context) (map[uint]onlineState, error) {
	now := s.now().UTC()
	since := now.Add(-s.onlineWindow)

	sessions, err := s.traffic.ActiveSessions(ctx, since)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(sessions))
	lastActive := make(map[string]time.Time, len(sessions))
	for i, sess := range sessions {
		keys[i] = sess.SessionID
		lastActive[sess.SessionID] = sess.LastActive
	}

	visitors, err := s.visitors.ListBySessionKeys(ctx, keys)
	if err != nil {
		return nil, err
	}

	online := make(map[uint]onlineState)
	for i := range visitors {
		v := &visitors[i]
		if v.User == nil || v.SessionEnded() || v.SessionExpired(now, s.sessionTimeout) {
			continue
		}
		state := onlineState{
			online:     !lastActive[v.SessionKey].Before(since),
			timeOnSite: v.TimeOnSite(),
		}
		// A user with several live sessions shows the longest one
		if prev, ok := online[v.User.ID]; ok && prev.timeOnSite > state.timeOnSite {
			continue
		}
		online[v.User.ID] = state
	}
	return online, nil
}

// ActiveAndRegisteredUsers lists every registered user with their presence and
// visit statistics, online users first.
func (s *UserActivityService) ActiveAndRegisteredUsers(ctx context.Context) (*ActiveUsers, error) {
	now := s.now().UTC()

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	visits, err := s.visitors.UserStats(ctx, now.Add(-visitStatsPeriod), now)
	if err != nil {
		return nil, err
	}
	online, err := s.onlineUsers(ctx)
	if err != nil {
		return nil, err
	}
	starts, err := s.visitors.LatestStarts(ctx)
	if err != nil {
		return nil, err
	}

	result := &ActiveUsers{RegisteredUsers: make([]RegisteredUser, 0, len(users))}
	for i := range users {
		u := &users[i]
		row := s.describe(u, visits[u.ID], online, starts)
		if row.IsOnline {
			result.OnlineUsersCount++
		}
		result.RegisteredUsers = append(result.RegisteredUsers, row)
	}

	sort.SliceStable(result.RegisteredUsers, func(i, j int) bool {
		return result.RegisteredUsers[i].IsOnline && !result.RegisteredUsers[j].IsOnline
	})
	return result, nil
}

func (s *UserActivityService) describe(u *models.User, visits models.UserVisitStats, online map[uint]onlineState, starts map[uint]time.Time) RegisteredUser {
	row := RegisteredUser{
		ID:            u.ID,
		Username:      u.Username,
		FullName:      u.FullName(),
		Email:         u.Email,
		TimeOnSite:    "-",
		VisitCount:    visits.VisitCount,
		AvgTimeOnSite: FormatDuration(visits.TimeOnSite),
		StartTime:     "Неизвестно",
	}
	if state, ok := online[u.ID]; ok {
		row.IsOnline = state.online
		row.TimeOnSite = FormatDuration(state.timeOnSite)
	}
	if start, ok := starts[u.ID]; ok {
		row.StartTime = start.In(s.loc).Format(time.RFC3339)
	}
	return row
}

// FormatDuration renders d as HH:MM:SS, truncated to whole seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
