// Package model defines the domain types used across the application.
package model

import "time"

// MessengerKind distinguishes identity namespaces across messenger backends.
type MessengerKind string

// KindThreema is the Threema gateway identity namespace.
const KindThreema MessengerKind = "threema"

// User is one chat identity known to the bot. The (Username, Kind) pair
// is unique; users are created on first contact and never deleted.
type User struct {
	ID        int64
	Username  string
	Kind      MessengerKind
	CreatedAt time.Time
}

// Flight is a single published flight from the feed. ID is the feed's
// globally unique flight identifier.
type Flight struct {
	ID      string
	Pilot   string
	Summary string
	URL     string
}

// AddOutcome reports the result of adding a subscription.
type AddOutcome int

// Outcomes of AddSubscription.
const (
	SubscriptionCreated AddOutcome = iota
	SubscriptionExists
)

// RemoveOutcome reports the result of removing a subscription.
type RemoveOutcome int

// Outcomes of RemoveSubscription.
const (
	SubscriptionRemoved RemoveOutcome = iota
	SubscriptionNotFound
)

// Stats holds aggregate table counts for the admin stats command.
type Stats struct {
	Users         int64
	Subscriptions int64
	Flights       int64
}
