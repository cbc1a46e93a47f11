package products

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/quenchlabs/beverage-api/internal/domain"
	"github.com/quenchlabs/beverage-api/internal/validation"
)

const defaultLowStockThreshold = 5

// Store is the persistence surface the product handlers need.
type Store interface {
	Create(ctx context.Context, name, description string, price int64, stock int) (*domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Product, int, error)
	Update(ctx context.Context, id, name, description string, price int64, stock int) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
	LowStock(ctx context.Context, threshold int) ([]domain.Product, error)
}

type Handler struct {
	store    Store
	validate *validatorv10.Validate
	logger   *slog.Logger
}

func NewHandler(store Store, validate *validatorv10.Validate, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		validate: validate,
		logger:   logger,
	}
}

type productRequest struct {
	Name          string `json:"name" validate:"required,min=1"`
	Description   string `json:"description" validate:"omitempty"`
	Price         int64  `json:"price" validate:"min=0"`
	StockQuantity int    `json:"stock_quantity" validate:"min=0"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		h.writeValidationError(w, err)
		return
	}

	product, err := h.store.Create(r.Context(), req.Name, req.Description, req.Price, req.StockQuantity)
	if err != nil {
		h.logger.Error("failed to create product", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("product created", "product_id", product.ID)
	h.writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Page: 1, Limit: 10}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && page > 0 {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	switch status := r.URL.Query().Get("status"); status {
	case "":
	case string(domain.ProductInStock), string(domain.ProductOutOfStock):
		filter.Status = domain.ProductStatus(status)
	default:
		h.writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	items, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"total":    total,
		"page":     filter.Page,
		"limit":    filter.Limit,
		"products": items,
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	product, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			h.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("failed to get product", "error", err, "product_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req productRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		h.writeValidationError(w, err)
		return
	}

	product, err := h.store.Update(r.Context(), id, req.Name, req.Description, req.Price, req.StockQuantity)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			h.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("failed to update product", "error", err, "product_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("product updated", "product_id", id)
	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrProductInUse):
			h.writeError(w, http.StatusBadRequest, "cannot delete product linked to an order")
		case errors.Is(err, domain.ErrProductNotFound):
			h.writeError(w, http.StatusNotFound, "product not found")
		default:
			h.logger.Error("failed to delete product", "error", err, "product_id", id)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("product deleted", "product_id", id)
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "product deleted successfully"})
}

func (h *Handler) HandleLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := defaultLowStockThreshold
	if v, err := strconv.Atoi(r.URL.Query().Get("threshold")); err == nil && v > 0 {
		threshold = v
	}

	items, err := h.store.LowStock(r.Context(), threshold)
	if err != nil {
		h.logger.Error("failed to list low stock products", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"products": items})
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
