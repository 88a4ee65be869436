package notify

import (
	"context"

	"restaurant_asset_tracker/internal/domain/maintenance"
)

// Payload is the machine-readable part of a reminder.
type Payload struct {
	NotificationID string            `json:"notification_id"`
	DeviceID       string            `json:"device_id"`
	Kind           maintenance.State `json:"kind"`
}

// Message is one outbound maintenance reminder.
type Message struct {
	DeviceID string
	Title    string
	Body     string
	Payload  Payload
}

// Dispatcher hands a message to the delivery channel. A nil error only means
// the message was accepted for delivery.
// This helps in decoupling the application logic from the specific bot library.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}
