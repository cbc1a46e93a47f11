package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quenchlabs/beverage-api/internal/domain"
	"github.com/quenchlabs/beverage-api/internal/validation"
)

type fakeUserStore struct {
	byEmail map[string]*domain.User
	byID    map[string]*domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byEmail: make(map[string]*domain.User),
		byID:    make(map[string]*domain.User),
	}
}

func (f *fakeUserStore) add(u *domain.User) {
	f.byEmail[u.Email] = u
	f.byID[u.ID] = u
}

func (f *fakeUserStore) Create(_ context.Context, fullName, email, passwordHash string, role domain.UserRole) (*domain.User, error) {
	if _, exists := f.byEmail[email]; exists {
		return nil, domain.ErrEmailTaken
	}
	u := &domain.User{
		ID:           "user-" + email,
		FullName:     fullName,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		Status:       domain.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	f.add(u)
	return u, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func newTestHandler(users UserStore) (*Handler, SessionStore) {
	sessions := NewMemorySessionStore()
	tokens := NewTokenIssuer("test-secret", time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(users, sessions, tokens, time.Hour, validation.New(), logger), sessions
}

func TestHandleRegister(t *testing.T) {
	t.Run("creates a user", func(t *testing.T) {
		handler, _ := newTestHandler(newFakeUserStore())

		body := `{"full_name":"Ada Obi","email":"ada@example.com","password":"supersecret"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.HandleRegister(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if strings.Contains(rec.Body.String(), "supersecret") {
			t.Error("response must not leak the password or its hash")
		}
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		store := newFakeUserStore()
		store.add(&domain.User{ID: "u1", Email: "ada@example.com"})
		handler, _ := newTestHandler(store)

		body := `{"full_name":"Ada Obi","email":"ada@example.com","password":"supersecret"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.HandleRegister(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("rejects short password", func(t *testing.T) {
		handler, _ := newTestHandler(newFakeUserStore())

		body := `{"full_name":"Ada Obi","email":"ada@example.com","password":"short"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.HandleRegister(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("rejects self-assigned admin role", func(t *testing.T) {
		handler, _ := newTestHandler(newFakeUserStore())

		body := `{"full_name":"Ada Obi","email":"ada@example.com","password":"supersecret","role":"admin"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.HandleRegister(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestHandleLogin(t *testing.T) {
	setup := func(t *testing.T) (*Handler, SessionStore) {
		t.Helper()
		store := newFakeUserStore()
		hash, err := HashPassword("supersecret")
		if err != nil {
			t.Fatalf("hash failed: %v", err)
		}
		store.add(&domain.User{
			ID:           "user-1",
			Email:        "ada@example.com",
			PasswordHash: hash,
			Role:         domain.RoleCustomer,
			Status:       domain.UserStatusActive,
		})
		return newTestHandler(store)
	}

	t.Run("issues token and session cookie", func(t *testing.T) {
		handler, sessions := setup(t)

		body := `{"email":"ada@example.com","password":"supersecret"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.HandleLogin(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if resp.Token == "" {
			t.Error("expected a token in the response")
		}

		var sessionCookie *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == SessionCookie {
				sessionCookie = c
			}
		}
		if sessionCookie == nil || sessionCookie.Value == "" {
			t.Fatal("expected a session cookie")
		}
		if !sessionCookie.HttpOnly {
			t.Error("session cookie must be http-only")
		}

		session, err := sessions.Get(context.Background(), sessionCookie.Value)
		if err != nil {
			t.Fatalf("session not stored: %v", err)
		}
		if session.UserID != "user-1" || session.Token != resp.Token {
			t.Errorf("unexpected session: %+v", session)
		}
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		handler, _ := setup(t)

		body := `{"email":"ada@example.com","password":"wrongwrong"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.HandleLogin(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("rejects unknown email with the same error", func(t *testing.T) {
		handler, _ := setup(t)

		body := `{"email":"nobody@example.com","password":"supersecret"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.HandleLogin(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("rejects inactive user", func(t *testing.T) {
		store := newFakeUserStore()
		hash, _ := HashPassword("supersecret")
		store.add(&domain.User{
			ID:           "user-2",
			Email:        "gone@example.com",
			PasswordHash: hash,
			Status:       domain.UserStatusInactive,
		})
		handler, _ := newTestHandler(store)

		body := `{"email":"gone@example.com","password":"supersecret"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.HandleLogin(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}

func TestHandleLogout(t *testing.T) {
	handler, sessions := newTestHandler(newFakeUserStore())

	session := Session{UserID: "user-1", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	if err := sessions.Put(context.Background(), "sess-1", session, time.Hour); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "sess-1"})
	rec := httptest.NewRecorder()

	handler.HandleLogout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, err := sessions.Get(context.Background(), "sess-1"); err == nil {
		t.Error("expected session to be deleted")
	}
}

func TestHandleProfile(t *testing.T) {
	store := newFakeUserStore()
	store.add(&domain.User{ID: "user-1", FullName: "Ada Obi", Email: "ada@example.com"})
	handler, _ := newTestHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	req = req.WithContext(ContextWithIdentity(req.Context(), Identity{UserID: "user-1", Role: domain.RoleCustomer}))
	rec := httptest.NewRecorder()

	handler.HandleProfile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ada@example.com") {
		t.Errorf("expected profile in response: %s", rec.Body.String())
	}
}
