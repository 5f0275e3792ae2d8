// Package scheduler runs the periodic flight poll loop.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"xcbot/internal/model"
	"xcbot/internal/storage"
)

// FlightSource yields the currently published flights.
type FlightSource interface {
	FetchFlights(ctx context.Context) ([]model.Flight, error)
}

// Notifier receives newly discovered flights for fan-out. DispatchAll must
// return after handoff so a slow delivery never delays the next poll.
type Notifier interface {
	DispatchAll(ctx context.Context, flights []model.Flight)
}

// Scheduler polls the flight feed on a fixed interval and hands flights
// that have not been seen before to the notifier. Flights are marked as
// processed before dispatch, so a crash mid-cycle can lose a notification
// but never duplicate one.
type Scheduler struct {
	store    storage.Storage
	feed     FlightSource
	notifier Notifier
	log      *slog.Logger
	interval time.Duration

	cycleRunning atomic.Bool
}

// New creates a Scheduler with the default 5-minute poll interval.
func New(store storage.Storage, feed FlightSource, notifier Notifier, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		feed:     feed,
		notifier: notifier,
		log:      log,
		interval: 5 * time.Minute,
	}
}

// SetInterval overrides the poll interval.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.interval = d
}

// Run starts the poll loop, blocking until ctx is cancelled. The first
// cycle runs immediately.
func (s *Scheduler) Run(ctx context.Context) {
	s.RunCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle performs one fetch/filter/dispatch cycle. At most one cycle is
// in its fetch/filter phase at a time; a tick arriving while the previous
// fetch is still running is skipped.
func (s *Scheduler) RunCycle(ctx context.Context) {
	if !s.cycleRunning.CompareAndSwap(false, true) {
		s.log.Warn("previous poll cycle still running, skipping tick")
		return
	}
	defer s.cycleRunning.Store(false)

	flights, err := s.feed.FetchFlights(ctx)
	if err != nil {
		s.log.Error("fetch flights", "error", err)
		return
	}

	var fresh []model.Flight
	now := time.Now().UTC()
	for _, f := range flights {
		if ctx.Err() != nil {
			return
		}
		created, err := s.store.MarkProcessed(ctx, f.ID, f.Pilot, now)
		if err != nil {
			s.log.Error("mark processed", "flight_id", f.ID, "error", err)
			continue
		}
		if !created {
			// Already notified in an earlier cycle or claimed by a
			// concurrent instance.
			continue
		}
		fresh = append(fresh, f)
	}

	if len(fresh) == 0 {
		s.log.Debug("no new flights", "fetched", len(flights))
		return
	}

	s.log.Info("discovered new flights", "count", len(fresh), "fetched", len(flights))
	s.notifier.DispatchAll(ctx, fresh)
}
