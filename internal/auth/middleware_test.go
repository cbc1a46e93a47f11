package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quenchlabs/beverage-api/internal/domain"
)

func testMiddleware(t *testing.T) (*Middleware, SessionStore, *TokenIssuer) {
	t.Helper()
	sessions := NewMemorySessionStore()
	tokens := NewTokenIssuer("test-secret", time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMiddleware(sessions, tokens, logger), sessions, tokens
}

func loggedInRequest(t *testing.T, sessions SessionStore, tokens *TokenIssuer, role domain.UserRole) *http.Request {
	t.Helper()
	token, err := tokens.Issue("user-1", role)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	session := Session{UserID: "user-1", Token: token, ExpiresAt: time.Now().Add(time.Hour)}
	if err := sessions.Put(context.Background(), "sess-1", session, time.Hour); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "sess-1"})
	return req
}

func TestAuthenticate(t *testing.T) {
	t.Run("passes identity through for a valid session", func(t *testing.T) {
		mw, sessions, tokens := testMiddleware(t)
		req := loggedInRequest(t, sessions, tokens, domain.RoleCustomer)

		var got Identity
		handler := mw.Authenticate(func(w http.ResponseWriter, r *http.Request) {
			got, _ = IdentityFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got.UserID != "user-1" || got.Role != domain.RoleCustomer {
			t.Errorf("unexpected identity: %+v", got)
		}
	})

	t.Run("rejects request without cookie", func(t *testing.T) {
		mw, _, _ := testMiddleware(t)
		handler := mw.Authenticate(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not run")
		})

		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("rejects unknown session", func(t *testing.T) {
		mw, _, _ := testMiddleware(t)
		handler := mw.Authenticate(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not run")
		})

		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "unknown"})
		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("rejects session with expired token and drops it", func(t *testing.T) {
		mw, sessions, _ := testMiddleware(t)

		expired := NewTokenIssuer("test-secret", -time.Minute)
		token, err := expired.Issue("user-1", domain.RoleCustomer)
		if err != nil {
			t.Fatalf("issue failed: %v", err)
		}
		session := Session{UserID: "user-1", Token: token, ExpiresAt: time.Now().Add(time.Hour)}
		if err := sessions.Put(context.Background(), "sess-1", session, time.Hour); err != nil {
			t.Fatalf("put failed: %v", err)
		}

		handler := mw.Authenticate(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not run")
		})

		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "sess-1"})
		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
		if _, err := sessions.Get(context.Background(), "sess-1"); err == nil {
			t.Error("expected invalid session to be dropped")
		}
	})
}

func TestRequireRole(t *testing.T) {
	t.Run("allows matching role", func(t *testing.T) {
		mw, sessions, tokens := testMiddleware(t)
		req := loggedInRequest(t, sessions, tokens, domain.RoleAdmin)

		handler := mw.RequireRole(domain.RoleAdmin, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("forbids other roles", func(t *testing.T) {
		mw, sessions, tokens := testMiddleware(t)
		req := loggedInRequest(t, sessions, tokens, domain.RoleCustomer)

		handler := mw.RequireRole(domain.RoleAdmin, func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not run")
		})

		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})
}
