package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/quenchlabs/beverage-api/internal/domain"
	"github.com/quenchlabs/beverage-api/internal/validation"
)

// UserStore is the persistence surface the auth handlers need.
type UserStore interface {
	Create(ctx context.Context, fullName, email, passwordHash string, role domain.UserRole) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type Handler struct {
	users      UserStore
	sessions   SessionStore
	tokens     *TokenIssuer
	sessionTTL time.Duration
	validate   *validatorv10.Validate
	logger     *slog.Logger
}

func NewHandler(users UserStore, sessions SessionStore, tokens *TokenIssuer, sessionTTL time.Duration, validate *validatorv10.Validate, logger *slog.Logger) *Handler {
	return &Handler{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		sessionTTL: sessionTTL,
		validate:   validate,
		logger:     logger,
	}
}

type registerRequest struct {
	FullName string `json:"full_name" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=customer delivery"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		h.writeValidationError(w, err)
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	role := domain.RoleCustomer
	if req.Role != "" {
		role = domain.UserRole(req.Role)
	}

	user, err := h.users.Create(r.Context(), req.FullName, req.Email, hash, role)
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			h.writeError(w, http.StatusBadRequest, "user already exists")
			return
		}
		h.logger.Error("failed to create user", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("user registered", "user_id", user.ID)
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"message": "user registered successfully",
		"user":    user,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		h.writeValidationError(w, err)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			h.writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("failed to look up user", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if user.Status != domain.UserStatusActive || !CheckPassword(user.PasswordHash, req.Password) {
		h.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Role)
	if err != nil {
		h.logger.Error("failed to issue token", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	sessionID := uuid.New().String()
	session := Session{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: time.Now().Add(h.sessionTTL),
	}
	if err := h.sessions.Put(r.Context(), sessionID, session, h.sessionTTL); err != nil {
		h.logger.Error("failed to store session", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessionTTL.Seconds()),
	})

	h.logger.Info("user logged in", "user_id", user.ID)
	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": "login successful",
		"token":   token,
	})
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			h.logger.Error("failed to delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	h.writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("failed to load profile", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var re *validation.RequestError
	if errors.As(err, &re) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  re.Message,
			"fields": re.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, "invalid request")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
