package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		store := NewMemorySessionStore()
		session := Session{UserID: "user-1", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}

		if err := store.Put(ctx, "s1", session, time.Hour); err != nil {
			t.Fatalf("put failed: %v", err)
		}

		got, err := store.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.UserID != "user-1" || got.Token != "tok" {
			t.Errorf("unexpected session: %+v", got)
		}
	})

	t.Run("missing session", func(t *testing.T) {
		store := NewMemorySessionStore()
		if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("expired session evicted", func(t *testing.T) {
		store := NewMemorySessionStore()
		session := Session{UserID: "user-1", ExpiresAt: time.Now().Add(-time.Minute)}
		if err := store.Put(ctx, "s1", session, time.Hour); err != nil {
			t.Fatalf("put failed: %v", err)
		}

		if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound for expired session, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		store := NewMemorySessionStore()
		session := Session{UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}
		if err := store.Put(ctx, "s1", session, time.Hour); err != nil {
			t.Fatalf("put failed: %v", err)
		}
		if err := store.Delete(ctx, "s1"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound after delete, got %v", err)
		}
	})
}
