package messaging

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestMessageCarrier(t *testing.T) {
	t.Run("set and get round-trip", func(t *testing.T) {
		msg := &kafka.Message{}
		carrier := NewMessageCarrier(msg)

		carrier.Set("traceparent", "00-abc-def-01")

		if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
			t.Errorf("expected header value back, got %q", got)
		}
	})

	t.Run("set overwrites an existing header", func(t *testing.T) {
		msg := &kafka.Message{Headers: []kafka.Header{
			{Key: "traceparent", Value: []byte("old")},
		}}
		carrier := NewMessageCarrier(msg)

		carrier.Set("traceparent", "new")

		if len(msg.Headers) != 1 {
			t.Fatalf("expected 1 header, got %d", len(msg.Headers))
		}
		if got := carrier.Get("traceparent"); got != "new" {
			t.Errorf("expected overwritten value, got %q", got)
		}
	})

	t.Run("get on a missing key is empty", func(t *testing.T) {
		carrier := NewMessageCarrier(&kafka.Message{})
		if got := carrier.Get("nope"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})

	t.Run("keys lists all headers", func(t *testing.T) {
		msg := &kafka.Message{Headers: []kafka.Header{
			{Key: "a", Value: []byte("1")},
			{Key: "b", Value: []byte("2")},
		}}
		keys := NewMessageCarrier(msg).Keys()
		if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
			t.Errorf("unexpected keys: %v", keys)
		}
	})
}
