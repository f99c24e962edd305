package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/axellelanca/trafficstats/internal/config"
	"github.com/axellelanca/trafficstats/internal/database"
	"github.com/axellelanca/trafficstats/internal/models"
	"github.com/axellelanca/trafficstats/internal/repository"
)

func TestSessionMonitorSweep(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = ":memory:"
	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	users := repository.NewUserRepository(db)
	visitors := repository.NewVisitorRepository(db)
	traffic := repository.NewTrafficRepository(db)

	alice := &models.User{Username: "alice"}
	if err := users.Create(ctx, alice); err != nil {
		t.Fatalf("create user: %v", err)
	}

	now := time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC)
	session := "alice-session"
	if err := visitors.Create(ctx, &models.Visitor{SessionKey: session, UserID: &alice.ID, StartTime: now.Add(-time.Hour), LastActivity: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("create visitor: %v", err)
	}
	if err := traffic.CreateTrafficStat(ctx, &models.TrafficStat{IPAddress: "1.1.1.1", SessionID: &session, UserID: &alice.ID, CreatedAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("create stat: %v", err)
	}

	m := NewSessionMonitor(visitors, traffic, time.Minute, 30*time.Minute, 5*time.Minute)
	m.now = func() time.Time { return now }

	m.Sweep(ctx)
	if m.OnlineCount() != 1 {
		t.Fatalf("expected alice online, got %d online users", m.OnlineCount())
	}

	// an hour later the session is idle and gets closed
	now = now.Add(time.Hour)
	m.Sweep(ctx)
	if m.OnlineCount() != 0 {
		t.Errorf("expected no online users, got %d", m.OnlineCount())
	}

	v, err := visitors.GetBySessionKey(ctx, session)
	if err != nil {
		t.Fatalf("GetBySessionKey: %v", err)
	}
	if v.EndTime == nil || !v.EndTime.Equal(v.LastActivity) {
		t.Errorf("expected session closed at its last activity, got %v", v.EndTime)
	}
}

func TestSessionMonitorStopsWithContext(t *testing.T) {
	m := NewSessionMonitor(nil, nil, time.Hour, time.Minute, time.Minute)
	m.visitors = stubVisitors{}
	m.traffic = stubTraffic{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}

type stubVisitors struct{ repository.VisitorRepository }

func (stubVisitors) CloseIdle(context.Context, time.Time) ([]models.Visitor, error) { return nil, nil }

func (stubVisitors) ListBySessionKeys(context.Context, []string) ([]models.Visitor, error) {
	return nil, nil
}

type stubTraffic struct{ repository.TrafficRepository }

func (stubTraffic) ActiveSessions(context.Context, time.Time) ([]models.SessionActivity, error) {
	return nil, nil
}
