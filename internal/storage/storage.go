// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"xcbot/internal/model"
)

// Storage is the interface for all persistence operations. Every operation
// is atomic on its own; callers never need external locking.
type Storage interface {
	// FindOrCreateUser returns the user with the given identity, creating it
	// if it does not exist yet.
	FindOrCreateUser(ctx context.Context, username string, kind model.MessengerKind) (*model.User, error)

	// AddSubscription subscribes a user to a pilot. Subscribing twice is a
	// no-op reported as SubscriptionExists.
	AddSubscription(ctx context.Context, userID int64, pilot string) (model.AddOutcome, error)

	// RemoveSubscription unsubscribes a user from a pilot.
	RemoveSubscription(ctx context.Context, userID int64, pilot string) (model.RemoveOutcome, error)

	// ListSubscriptions returns the pilots a user follows, sorted
	// case-insensitively.
	ListSubscriptions(ctx context.Context, userID int64) ([]string, error)

	// SubscribersOf returns every user following the given pilot.
	SubscribersOf(ctx context.Context, pilot string) ([]model.User, error)

	// MarkProcessed records that a flight has been evaluated for
	// notification. It returns false if the flight was already marked,
	// which is an expected race, not an error.
	MarkProcessed(ctx context.Context, flightID, pilot string, seenAt time.Time) (bool, error)

	// IsProcessed reports whether a flight has already been marked.
	IsProcessed(ctx context.Context, flightID string) (bool, error)

	// Stats returns aggregate table counts.
	Stats(ctx context.Context) (*model.Stats, error)

	Close() error
}
