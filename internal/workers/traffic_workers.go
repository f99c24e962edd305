package workers

import (
	"context"
	"log/slog"
	"sync"

	apperrors "github.com/axellelanca/trafficstats/internal/errors"
	"github.com/axellelanca/trafficstats/internal/models"
	"github.com/axellelanca/trafficstats/internal/repository"
)

// StartTrafficWorkers launches a pool of goroutines that persist traffic events
// received on events. Each worker exits when the channel is closed; wg is done
// once all of them have drained it.
func StartTrafficWorkers(workerCount int, events <-chan models.TrafficEvent, traffic repository.TrafficRepository, wg *sync.WaitGroup) {
	slog.Info("starting traffic workers", slog.Int("count", workerCount))

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			trafficWorker(events, traffic)
		}()
	}
}

// trafficWorker writes events until the channel is closed.
func trafficWorker(events <-chan models.TrafficEvent, traffic repository.TrafficRepository) {
	for event := range events {
		if err := traffic.CreateTrafficStat(context.Background(), event.ToStat()); err != nil {
			// keep going, one failed row must not stop the pool
			slog.Error("failed to save traffic event",
				slog.String("path", event.Path),
				slog.String("ip", event.IPAddress),
				slog.Any("error", err))
			continue
		}
		slog.Debug("traffic event recorded", slog.String("path", event.Path))
	}
}

// AsyncRecorder queues traffic events to a worker pool so that the request
// never waits for the database.
type AsyncRecorder struct {
	events chan models.TrafficEvent
	wg     sync.WaitGroup
	once   sync.Once
}

// NewAsyncRecorder creates the event queue and starts workerCount workers.
func NewAsyncRecorder(bufferSize, workerCount int, traffic repository.TrafficRepository) *AsyncRecorder {
	r := &AsyncRecorder{events: make(chan models.TrafficEvent, bufferSize)}
	StartTrafficWorkers(workerCount, r.events, traffic, &r.wg)
	return r
}

// Record enqueues the event without blocking. A full queue drops the event.
func (r *AsyncRecorder) Record(_ context.Context, event models.TrafficEvent) error {
	select {
	case r.events <- event:
		return nil
	default:
		return apperrors.ErrTrackingFailed{Path: event.Path, Reason: "event queue is full"}
	}
}

// Close stops accepting events and waits until the queued ones are written or
// ctx is done. Record must not be called after Close.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.once.Do(func() { close(r.events) })

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
