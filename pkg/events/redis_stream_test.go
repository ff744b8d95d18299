package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisStreamPublisherAppendsEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	p, err := NewRedisStreamPublisher(RedisStreamConfig{Addr: mr.Addr(), Stream: "test:events"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer p.Close()

	evt := Event{
		ID:         "evt-1",
		Type:       TypeEnrollmentGranted,
		UserID:     "u1",
		CourseID:   "go-101",
		OccurredAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Payload:    json.RawMessage(`{"paymentMethod":"card"}`),
	}
	if err := p.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msgs, err := p.client.XRange(context.Background(), "test:events", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	values := msgs[0].Values
	if values["type"] != TypeEnrollmentGranted || values["course_id"] != "go-101" {
		t.Fatalf("unexpected values %+v", values)
	}
	var decoded Event
	if err := json.Unmarshal([]byte(values["body"].(string)), &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.UserID != "u1" || string(decoded.Payload) != `{"paymentMethod":"card"}` {
		t.Fatalf("unexpected body %+v", decoded)
	}
}

func TestNewRedisStreamPublisherRequiresAddr(t *testing.T) {
	if _, err := NewRedisStreamPublisher(RedisStreamConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestNewAMQPPublisherRequiresURLEmptyExchange(t *testing.T) {
	if _, err := NewAMQPPublisher(" ", ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
