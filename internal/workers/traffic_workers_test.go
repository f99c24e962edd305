package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/axellelanca/trafficstats/internal/errors"
	"github.com/axellelanca/trafficstats/internal/models"
	"github.com/axellelanca/trafficstats/internal/repository"
)

// memoryTraffic is a TrafficRepository that only keeps created rows.
type memoryTraffic struct {
	repository.TrafficRepository

	mu    sync.Mutex
	stats []*models.TrafficStat
	block chan struct{}
	fail  bool
}

func (m *memoryTraffic) CreateTrafficStat(_ context.Context, stat *models.TrafficStat) error {
	if m.block != nil {
		<-m.block
	}
	if m.fail {
		return errors.New("database is down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = append(m.stats, stat)
	return nil
}

func (m *memoryTraffic) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stats)
}

func TestAsyncRecorderDrainsOnClose(t *testing.T) {
	repo := &memoryTraffic{}
	rec := NewAsyncRecorder(100, 3, repo)

	for i := 0; i < 50; i++ {
		if err := rec.Record(context.Background(), models.TrafficEvent{IPAddress: "1.1.1.1", Path: "/", Timestamp: time.Now()}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rec.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := repo.count(); got != 50 {
		t.Errorf("expected 50 stored events, got %d", got)
	}
	// closing twice is harmless
	if err := rec.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestAsyncRecorderDropsWhenFull(t *testing.T) {
	repo := &memoryTraffic{block: make(chan struct{})}
	rec := NewAsyncRecorder(1, 1, repo)

	// the single worker takes the first event and blocks, the second fills the buffer
	var dropped error
	for i := 0; i < 10 && dropped == nil; i++ {
		dropped = rec.Record(context.Background(), models.TrafficEvent{Path: "/full/"})
	}

	var trackingErr apperrors.ErrTrackingFailed
	if !errors.As(dropped, &trackingErr) || trackingErr.Path != "/full/" {
		t.Fatalf("expected ErrTrackingFailed for /full/, got %v", dropped)
	}

	close(repo.block)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rec.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestTrafficWorkerSurvivesErrors(t *testing.T) {
	repo := &memoryTraffic{fail: true}
	events := make(chan models.TrafficEvent, 2)
	events <- models.TrafficEvent{Path: "/a/"}
	events <- models.TrafficEvent{Path: "/b/"}
	close(events)

	var wg sync.WaitGroup
	StartTrafficWorkers(1, events, repo, &wg)
	wg.Wait()

	if repo.count() != 0 {
		t.Errorf("expected no stored events, got %d", repo.count())
	}
}
