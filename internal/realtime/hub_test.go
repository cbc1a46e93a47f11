package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/quenchlabs/beverage-api/internal/domain"
)

func newTestClient() *client {
	return &client{send: make(chan []byte, clientBufferSize)}
}

func receive(t *testing.T, c *client) domain.OrderStatusEvent {
	t.Helper()
	select {
	case payload := <-c.send:
		var event domain.OrderStatusEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return domain.OrderStatusEvent{}
	}
}

func TestHubPublishStatus(t *testing.T) {
	t.Run("delivers to clients tracking the order", func(t *testing.T) {
		hub := NewHub()
		c1 := newTestClient()
		c2 := newTestClient()
		hub.track(c1, "order-1")
		hub.track(c2, "order-1")

		hub.PublishStatus("order-1", domain.OrderStatusConfirmed)

		for _, c := range []*client{c1, c2} {
			event := receive(t, c)
			if event.OrderID != "order-1" || event.Status != domain.OrderStatusConfirmed {
				t.Errorf("unexpected event: %+v", event)
			}
		}
	})

	t.Run("does not deliver to other rooms", func(t *testing.T) {
		hub := NewHub()
		c := newTestClient()
		hub.track(c, "order-1")

		hub.PublishStatus("order-2", domain.OrderStatusCancelled)

		select {
		case payload := <-c.send:
			t.Errorf("unexpected delivery: %s", payload)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("drops messages for a full client buffer", func(t *testing.T) {
		hub := NewHub()
		c := newTestClient()
		hub.track(c, "order-1")

		for i := 0; i < clientBufferSize+5; i++ {
			hub.PublishStatus("order-1", domain.OrderStatusPending)
		}

		if len(c.send) != clientBufferSize {
			t.Errorf("expected buffer capped at %d, got %d", clientBufferSize, len(c.send))
		}
	})
}

func TestHubRemove(t *testing.T) {
	hub := NewHub()
	c := newTestClient()
	hub.track(c, "order-1")

	if hub.TrackerCount("order-1") != 1 {
		t.Fatalf("expected 1 tracker, got %d", hub.TrackerCount("order-1"))
	}

	hub.remove(c)

	if hub.TrackerCount("order-1") != 0 {
		t.Errorf("expected room to be empty after remove")
	}

	// Idempotent: removing again must not panic.
	hub.remove(c)
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	c := newTestClient()
	hub.track(c, "order-1")

	hub.Close()

	if hub.TrackerCount("order-1") != 0 {
		t.Error("expected rooms cleared after close")
	}

	// Tracking after close is a no-op.
	hub.track(newTestClient(), "order-2")
	if hub.TrackerCount("order-2") != 0 {
		t.Error("expected no tracking after close")
	}
}
