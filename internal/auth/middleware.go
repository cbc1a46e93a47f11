package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quenchlabs/beverage-api/internal/domain"
)

// SessionCookie is the cookie carrying the session id.
const SessionCookie = "sessionId"

type contextKey struct{}

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID string
	Role   domain.UserRole
}

func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Middleware authenticates requests: session cookie -> session store ->
// JWT verification. The resulting identity rides the request context.
type Middleware struct {
	sessions SessionStore
	tokens   *TokenIssuer
	logger   *slog.Logger
}

func NewMiddleware(sessions SessionStore, tokens *TokenIssuer, logger *slog.Logger) *Middleware {
	return &Middleware{
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
	}
}

// Authenticate wraps a handler so it only runs for a valid session.
func (m *Middleware) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil || cookie.Value == "" {
			unauthorized(w, "no session")
			return
		}

		session, err := m.sessions.Get(r.Context(), cookie.Value)
		if err != nil {
			unauthorized(w, "invalid session")
			return
		}

		identity, err := m.tokens.Verify(session.Token)
		if err != nil {
			// The session outlived its token; drop it.
			_ = m.sessions.Delete(r.Context(), cookie.Value)
			unauthorized(w, "token expired or invalid")
			return
		}

		next(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	}
}

// RequireRole wraps an already-authenticated handler and rejects callers
// whose role does not match.
func (m *Middleware) RequireRole(role domain.UserRole, next http.HandlerFunc) http.HandlerFunc {
	return m.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok || identity.Role != role {
			forbidden(w)
			return
		}
		next(w, r)
	})
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized: " + message})
}

func forbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "forbidden"})
}
