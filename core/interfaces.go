package core

import (
	"context"

	"github.com/goccy/go-json"
)

// Event is a content notification, emitted after a record operation committed
type Event struct {
	Name      string          `json:"event"`
	Type      string          `json:"type"`
	Operation Operation       `json:"operation"`
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Notifier is an interface to receive content notifications
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
