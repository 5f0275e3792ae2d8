// Package messenger abstracts the outbound chat message gateway.
package messenger

import (
	"context"
	"fmt"

	"xcbot/internal/model"
)

// Messenger sends text messages to a recipient identity.
type Messenger interface {
	Send(ctx context.Context, recipient, text string) error
	Kind() model.MessengerKind
}

// DeliveryError is a failed message delivery. Transient failures may be
// retried; permanent ones (unknown recipient, rejected payload) may not.
type DeliveryError struct {
	Permanent bool
	Status    int // HTTP status, 0 for transport errors
	Err       error
}

func (e *DeliveryError) Error() string {
	class := "transient"
	if e.Permanent {
		class = "permanent"
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s delivery error: status %d", class, e.Status)
	}
	return fmt.Sprintf("%s delivery error: %v", class, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
