package ports

import (
	"context"
	"time"
)

// Event is a session or delivery notification published for observers.
type Event struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// EventPublisher publishes events to an external bus.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
