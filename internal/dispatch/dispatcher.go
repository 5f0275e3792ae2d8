// Package dispatch fans out flight notifications to subscribers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"xcbot/internal/messenger"
	"xcbot/internal/model"
	"xcbot/internal/storage"
)

// Dispatcher delivers new-flight notifications to all subscribers of a
// pilot. Delivery is best effort: each (flight, subscriber) pair is an
// independent attempt with its own retry budget, and one exhausted
// recipient never affects the others.
type Dispatcher struct {
	store  storage.Storage
	sender messenger.Messenger
	log    *slog.Logger

	limiter       *rate.Limiter
	attempts      int
	backoff       time.Duration
	maxConcurrent int

	wg sync.WaitGroup
}

// New creates a Dispatcher with default retry and rate settings.
func New(store storage.Storage, sender messenger.Messenger, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:         store,
		sender:        sender,
		log:           log,
		limiter:       rate.NewLimiter(rate.Limit(10), 10),
		attempts:      3,
		backoff:       time.Second,
		maxConcurrent: 8,
	}
}

// SetAttempts overrides the per-recipient delivery attempt budget.
func (d *Dispatcher) SetAttempts(n int) {
	if n >= 1 {
		d.attempts = n
	}
}

// SetBackoff overrides the base delay of the exponential retry backoff.
func (d *Dispatcher) SetBackoff(dur time.Duration) {
	d.backoff = dur
}

// DispatchAll hands off a batch of flights for delivery and returns
// immediately. Flights are delivered one after another in slice order so
// a subscriber of several pilots sees notifications in feed order.
func (d *Dispatcher) DispatchAll(ctx context.Context, flights []model.Flight) {
	if len(flights) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for _, f := range flights {
			if ctx.Err() != nil {
				return
			}
			d.Dispatch(ctx, f)
		}
	}()
}

// Dispatch delivers one flight to every current subscriber of its pilot,
// blocking until all delivery attempts have finished.
func (d *Dispatcher) Dispatch(ctx context.Context, flight model.Flight) {
	subscribers, err := d.store.SubscribersOf(ctx, flight.Pilot)
	if err != nil {
		d.log.Error("resolve subscribers", "pilot", flight.Pilot, "flight_id", flight.ID, "error", err)
		return
	}
	if len(subscribers) == 0 {
		d.log.Debug("no subscribers", "pilot", flight.Pilot, "flight_id", flight.ID)
		return
	}

	text := FormatNotification(flight)

	// Plain group, not WithContext: a failed recipient must not cancel
	// deliveries to the remaining ones.
	g := new(errgroup.Group)
	g.SetLimit(d.maxConcurrent)
	for _, sub := range subscribers {
		sub := sub
		g.Go(func() error {
			d.deliver(ctx, sub, flight, text)
			return nil
		})
	}
	_ = g.Wait()
}

// Wait blocks until all handed-off deliveries have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, user model.User, flight model.Flight, text string) {
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}

	backoff := retry.WithMaxRetries(uint64(d.attempts-1), retry.NewExponential(d.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := d.sender.Send(ctx, user.Username, text)
		if err == nil {
			return nil
		}
		var derr *messenger.DeliveryError
		if errors.As(err, &derr) && !derr.Permanent {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		d.log.Warn("notification dropped",
			"flight_id", flight.ID,
			"recipient", user.Username,
			"attempts", d.attempts,
			"error", err,
		)
		return
	}
	d.log.Info("notified subscriber", "flight_id", flight.ID, "recipient", user.Username)
}

// FormatNotification builds the message text for one new flight.
func FormatNotification(flight model.Flight) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New flight by %s!\n\n", flight.Pilot)
	b.WriteString(flight.Summary)
	if flight.URL != "" {
		b.WriteString("\n\n")
		b.WriteString(flight.URL)
	}
	return b.String()
}
