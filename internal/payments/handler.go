package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/quenchlabs/beverage-api/internal/auth"
	"github.com/quenchlabs/beverage-api/internal/domain"
)

// orderReference embeds the order UUID so verification and webhooks can
// recover it without a lookup table.
var orderReference = regexp.MustCompile(`^order_([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})_\d+$`)

// Gateway is the slice of the Paystack client the handlers use.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*VerifyResponse, error)
}

type OrderStore interface {
	GetByID(ctx context.Context, id, userID string) (*domain.Order, error)
	MarkConfirmed(ctx context.Context, id string) (*domain.Order, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type Notifier interface {
	StatusChanged(ctx context.Context, orderID string, status domain.OrderStatus)
}

type Handler struct {
	gateway       Gateway
	orders        OrderStore
	users         UserStore
	notifier      Notifier
	webhookSecret string
	callbackURL   string
	logger        *slog.Logger
}

func NewHandler(gateway Gateway, orders OrderStore, users UserStore, notifier Notifier, webhookSecret, callbackURL string, logger *slog.Logger) *Handler {
	return &Handler{
		gateway:       gateway,
		orders:        orders,
		users:         users,
		notifier:      notifier,
		webhookSecret: webhookSecret,
		callbackURL:   callbackURL,
		logger:        logger,
	}
}

// HandleInitialize starts a checkout for a pending order owned by the
// caller and returns the hosted payment URL.
func (h *Handler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID := r.PathValue("orderID")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.GetByID(r.Context(), orderID, identity.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to load order for payment", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order.Status != domain.OrderStatusPending {
		h.writeError(w, http.StatusBadRequest, "only pending orders can be paid for")
		return
	}

	user, err := h.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to load user for payment", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	reference := fmt.Sprintf("order_%s_%d", order.ID, time.Now().Unix())
	result, err := h.gateway.InitializeTransaction(r.Context(), InitializeRequest{
		Email:       user.Email,
		Amount:      order.TotalAmount,
		Reference:   reference,
		CallbackURL: h.callbackURL,
		Metadata:    map[string]string{"orderId": order.ID},
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "payment initialization failed", "error", err, "order_id", order.ID)
		h.writeError(w, http.StatusBadGateway, "payment initialization failed")
		return
	}

	h.logger.InfoContext(r.Context(), "payment initialized",
		"order_id", order.ID, "reference", result.Reference)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"authorization_url": result.AuthorizationURL,
		"reference":         result.Reference,
	})
}

// HandleVerify confirms an order once its transaction has succeeded.
// Paystack redirects the customer here after checkout.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		h.writeError(w, http.StatusBadRequest, "missing reference")
		return
	}

	result, err := h.gateway.VerifyTransaction(r.Context(), reference)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "payment verification failed", "error", err, "reference", reference)
		h.writeError(w, http.StatusBadGateway, "payment verification failed")
		return
	}

	if result.Status != "success" {
		h.writeJSON(w, http.StatusOK, map[string]string{
			"message": "payment not successful",
			"status":  result.Status,
		})
		return
	}

	match := orderReference.FindStringSubmatch(reference)
	if match == nil {
		h.writeError(w, http.StatusBadRequest, "unrecognized reference format")
		return
	}

	if err := h.confirmOrder(r.Context(), match[1]); err != nil {
		h.writeConfirmError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"message": "payment verified, order confirmed"})
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string            `json:"reference"`
		Metadata  map[string]string `json:"metadata"`
	} `json:"data"`
}

// HandleWebhook processes Paystack's server-to-server notifications.
// The body's HMAC-SHA512 must match the x-paystack-signature header.
// Events we don't act on are acknowledged with 200 so Paystack stops
// retrying them.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if h.webhookSecret != "" && !h.validSignature(body, r.Header.Get("x-paystack-signature")) {
		h.logger.WarnContext(r.Context(), "webhook signature mismatch")
		h.writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed event")
		return
	}

	if event.Event != "charge.success" {
		w.WriteHeader(http.StatusOK)
		return
	}

	orderID := event.Data.Metadata["orderId"]
	if orderID == "" {
		if match := orderReference.FindStringSubmatch(event.Data.Reference); match != nil {
			orderID = match[1]
		}
	}
	if orderID == "" {
		h.logger.WarnContext(r.Context(), "charge.success without order id", "reference", event.Data.Reference)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.confirmOrder(r.Context(), orderID); err != nil {
		// Already-confirmed and missing orders are not retryable; ack them.
		h.logger.WarnContext(r.Context(), "webhook confirmation skipped", "error", err, "order_id", orderID)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) confirmOrder(ctx context.Context, orderID string) error {
	order, err := h.orders.MarkConfirmed(ctx, orderID)
	if err != nil {
		return err
	}
	if h.notifier != nil {
		h.notifier.StatusChanged(ctx, order.ID, order.Status)
	}
	h.logger.InfoContext(ctx, "order confirmed by payment", "order_id", order.ID)
	return nil
}

func (h *Handler) validSignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (h *Handler) writeConfirmError(w http.ResponseWriter, r *http.Request, err error) {
	var invalidTransition *domain.InvalidTransitionError
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.As(err, &invalidTransition):
		h.writeError(w, http.StatusBadRequest, "order is not pending")
	default:
		h.logger.ErrorContext(r.Context(), "failed to confirm order", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
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
