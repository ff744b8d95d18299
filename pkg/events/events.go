package events

import (
	"context"
	"encoding/json"
	"time"
)

const (
	TypeEnrollmentGranted = "enrollment.granted"
	TypeReviewSubmitted   = "review.submitted"
)

// Event is a domain fact announced to downstream consumers (mailers,
// analytics, instructor dashboards).
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	UserID     string          `json:"userId"`
	CourseID   string          `json:"courseId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Publisher delivers events. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
