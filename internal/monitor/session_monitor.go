package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/axellelanca/trafficstats/internal/repository"
)

// SessionMonitor periodically closes idle visitor sessions and tracks which
// registered users are online, logging every change.
type SessionMonitor struct {
	visitors     repository.VisitorRepository
	traffic      repository.TrafficRepository
	interval     time.Duration // how often to sweep
	timeout      time.Duration // idle time after which a session is closed
	onlineWindow time.Duration // recent traffic needed to count as online
	knownStates  map[uint]bool // user id -> online at the previous sweep
	mu           sync.Mutex
	now          func() time.Time
}

// NewSessionMonitor creates a SessionMonitor.
func NewSessionMonitor(visitors repository.VisitorRepository, traffic repository.TrafficRepository,
	interval, timeout, onlineWindow time.Duration) *SessionMonitor {
	return &SessionMonitor{
		visitors:     visitors,
		traffic:      traffic,
		interval:     interval,
		timeout:      timeout,
		onlineWindow: onlineWindow,
		knownStates:  make(map[uint]bool),
		now:          time.Now,
	}
}

// Start runs a sweep immediately and then every interval until ctx is done.
func (m *SessionMonitor) Start(ctx context.Context) {
	slog.Info("starting session monitor", slog.Duration("interval", m.interval))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Sweep(ctx)
	for {
		select {
		case <-ticker.C:
			m.Sweep(ctx)
		case <-ctx.Done():
			slog.Info("session monitor stopped")
			return
		}
	}
}

// Sweep closes the sessions idle for longer than the timeout and logs the users
// that came online or went offline since the previous sweep.
func (m *SessionMonitor) Sweep(ctx context.Context) {
	now := m.now().UTC()

	closed, err := m.visitors.CloseIdle(ctx, now.Add(-m.timeout))
	if err != nil {
		slog.Error("failed to close idle sessions", slog.Any("error", err))
	} else if len(closed) > 0 {
		slog.Info("closed idle sessions", slog.Int("count", len(closed)))
	}

	online, err := m.onlineUsers(ctx, now)
	if err != nil {
		slog.Error("failed to load online users", slog.Any("error", err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range online {
		if !m.knownStates[id] {
			slog.Info("user came online", slog.Uint64("user_id", uint64(id)))
		}
		m.knownStates[id] = true
	}
	for id, wasOnline := range m.knownStates {
		if _, ok := online[id]; ok || !wasOnline {
			continue
		}
		slog.Info("user went offline", slog.Uint64("user_id", uint64(id)))
		delete(m.knownStates, id)
	}
}

// OnlineCount returns how many users were online at the last sweep.
func (m *SessionMonitor) OnlineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.knownStates)
}

func (m *SessionMonitor) onlineUsers(ctx context.Context, now time.Time) (map[uint]struct{}, error) {
	sessions, err := m.traffic.ActiveSessions(ctx, now.Add(-m.onlineWindow))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(sessions))
	for i, s := range sessions {
		keys[i] = s.SessionID
	}
	visitors, err := m.visitors.ListBySessionKeys(ctx, keys)
	if err != nil {
		return nil, err
	}

	online := make(map[uint]struct{})
	for i := range visitors {
		v := &visitors[i]
		if v.UserID == nil || v.SessionEnded() {
			continue
		}
		online[*v.UserID] = struct{}{}
	}
	return online, nil
}
