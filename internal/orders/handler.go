package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/quenchlabs/beverage-api/internal/auth"
	"github.com/quenchlabs/beverage-api/internal/domain"
	"github.com/quenchlabs/beverage-api/internal/validation"
)

// Store is the persistence surface the order handlers need.
type Store interface {
	Place(ctx context.Context, userID string, orderType domain.OrderType, lines []domain.OrderLine) (*domain.Order, error)
	GetByID(ctx context.Context, id, userID string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	UpdateItems(ctx context.Context, id, userID string, orderType domain.OrderType, lines []domain.OrderLine) (*domain.Order, error)
	Cancel(ctx context.Context, id, userID string) (*domain.Order, error)
}

// Notifier fans out order lifecycle events; implementations must not block
// the request path on delivery.
type Notifier interface {
	OrderCreated(ctx context.Context, order *domain.Order)
	StatusChanged(ctx context.Context, orderID string, status domain.OrderStatus)
}

type Handler struct {
	store    Store
	notifier Notifier
	validate *validatorv10.Validate
	logger   *slog.Logger

	placedCounter   metric.Int64Counter
	rejectedCounter metric.Int64Counter
}

func NewHandler(store Store, notifier Notifier, validate *validatorv10.Validate, logger *slog.Logger) (*Handler, error) {
	meter := otel.Meter("orders")

	placed, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders successfully placed"))
	if err != nil {
		return nil, err
	}

	rejected, err := meter.Int64Counter("orders.rejected",
		metric.WithDescription("Order placements rejected before commit"))
	if err != nil {
		return nil, err
	}

	return &Handler{
		store:           store,
		notifier:        notifier,
		validate:        validate,
		logger:          logger,
		placedCounter:   placed,
		rejectedCounter: rejected,
	}, nil
}

type orderLineRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type orderRequest struct {
	OrderType string             `json:"order_type" validate:"required,oneof=single group"`
	Items     []orderLineRequest `json:"items" validate:"required,min=1,dive"`
}

func (r orderRequest) lines() []domain.OrderLine {
	lines := make([]domain.OrderLine, 0, len(r.Items))
	for _, item := range r.Items {
		lines = append(lines, domain.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req orderRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		h.writeValidationError(w, err)
		return
	}

	order, err := h.store.Place(r.Context(), identity.UserID, domain.OrderType(req.OrderType), req.lines())
	if err != nil {
		h.writeOrderError(w, r, err, "place")
		return
	}

	h.placedCounter.Add(r.Context(), 1,
		metric.WithAttributes(attribute.String("order.type", string(order.OrderType))))

	if h.notifier != nil {
		h.notifier.OrderCreated(r.Context(), order)
	}

	h.logger.InfoContext(r.Context(), "order placed",
		"order_id", order.ID, "user_id", order.UserID, "total", order.TotalAmount)
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"message": "order placed successfully",
		"order":   order,
	})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := h.store.ListByUser(r.Context(), identity.UserID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.store.GetByID(r.Context(), id, identity.UserID)
	if err != nil {
		h.writeOrderError(w, r, err, "get")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req orderRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		h.writeValidationError(w, err)
		return
	}

	order, err := h.store.UpdateItems(r.Context(), id, identity.UserID, domain.OrderType(req.OrderType), req.lines())
	if err != nil {
		h.writeOrderError(w, r, err, "update")
		return
	}

	h.logger.InfoContext(r.Context(), "order updated", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"message": "order updated successfully",
		"order":   order,
	})
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.store.Cancel(r.Context(), id, identity.UserID)
	if err != nil {
		h.writeOrderError(w, r, err, "cancel")
		return
	}

	if h.notifier != nil {
		h.notifier.StatusChanged(r.Context(), order.ID, order.Status)
	}

	h.logger.InfoContext(r.Context(), "order cancelled", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"message": "order cancelled successfully",
		"order":   order,
	})
}

// writeOrderError maps the error taxonomy onto status codes: terminal
// client rejections keep their detail, datastore faults surface generically.
func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var insufficientStock *domain.InsufficientStockError
	var productNotFound *domain.ProductNotFoundError
	var invalidTransition *domain.InvalidTransitionError

	switch {
	case errors.As(err, &insufficientStock):
		h.rejectedCounter.Add(r.Context(), 1,
			metric.WithAttributes(attribute.String("reason", "insufficient_stock")))
		h.writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "insufficient stock",
			"product_id": insufficientStock.ProductID,
			"available":  insufficientStock.Available,
			"requested":  insufficientStock.Requested,
		})
	case errors.As(err, &productNotFound):
		h.rejectedCounter.Add(r.Context(), 1,
			metric.WithAttributes(attribute.String("reason", "product_not_found")))
		h.writeJSON(w, http.StatusNotFound, map[string]any{
			"error":      "product not found",
			"product_id": productNotFound.ProductID,
		})
	case errors.As(err, &invalidTransition):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  transitionMessage(action),
			"status": invalidTransition.Status,
		})
	case errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	default:
		h.logger.ErrorContext(r.Context(), "order operation failed", "error", err, "action", action)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func transitionMessage(action string) string {
	switch action {
	case "cancel":
		return "only pending orders can be cancelled"
	case "update":
		return "only pending orders can be updated"
	default:
		return "order status does not permit this operation"
	}
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
