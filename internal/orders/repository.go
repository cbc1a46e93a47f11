package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quenchlabs/beverage-api/internal/domain"
)

type OrderRepository struct {
	db              *sql.DB
	restockOnCancel bool
}

type Option func(*OrderRepository)

// WithRestockOnCancel makes Cancel return the order's quantities to product
// stock inside the cancel transaction. Off by default: a cancelled order's
// units may already be physically reserved downstream.
func WithRestockOnCancel(enabled bool) Option {
	return func(r *OrderRepository) {
		r.restockOnCancel = enabled
	}
}

func NewOrderRepository(db *sql.DB, opts ...Option) *OrderRepository {
	r := &OrderRepository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Place turns a validated cart into a persisted order and a consistent
// inventory state, all-or-nothing. Each product row is locked with
// SELECT ... FOR UPDATE before its stock is checked, so two concurrent
// placements racing for the last unit serialize: one commits the decrement,
// the other observes the reduced stock and fails.
//
// The first line that references a missing product or exceeds available
// stock aborts the whole transaction; no order row or stock change survives.
// Duplicate lines for the same product are merged before the check, so a
// product's combined demand is validated against its stock exactly once.
func (r *OrderRepository) Place(ctx context.Context, userID string, orderType domain.OrderType, lines []domain.OrderLine) (*domain.Order, error) {
	lines = domain.MergeLines(lines)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	products := make([]domain.Product, 0, len(lines))
	for _, line := range lines {
		product, err := lockProduct(ctx, tx, line.ProductID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, &domain.ProductNotFoundError{ProductID: line.ProductID}
			}
			return nil, err
		}
		if product.StockQuantity < line.Quantity {
			return nil, &domain.InsufficientStockError{
				ProductID: line.ProductID,
				Available: product.StockQuantity,
				Requested: line.Quantity,
			}
		}
		products = append(products, *product)
	}

	items, total := domain.PriceLines(lines, products)

	now := time.Now().UTC()
	order := &domain.Order{
		ID:          uuid.New().String(),
		UserID:      userID,
		OrderType:   orderType,
		Items:       items,
		TotalAmount: total,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, order_type, total_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, order.ID, order.UserID, order.OrderType, order.TotalAmount, order.Status, order.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := insertItems(ctx, tx, order.ID, items); err != nil {
		return nil, err
	}

	for _, item := range items {
		if err := decrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return order, nil
}

// GetByID returns the order only if it belongs to userID.
func (r *OrderRepository) GetByID(ctx context.Context, id, userID string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, order_type, total_amount, status, created_at, updated_at
		FROM orders
		WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(&order.ID, &order.UserID, &order.OrderType, &order.TotalAmount,
		&order.Status, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, order_type, total_amount, status, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.Order{}
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.OrderType, &order.TotalAmount,
			&order.Status, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// UpdateItems replaces a pending order's line items. Unit prices are
// re-resolved from the product table, never taken from the request. The
// update path does not touch stock; edited quantities are not reserved
// until the order is confirmed.
func (r *OrderRepository) UpdateItems(ctx context.Context, id, userID string, orderType domain.OrderType, lines []domain.OrderLine) (*domain.Order, error) {
	lines = domain.MergeLines(lines)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := lockOrder(ctx, tx, id, userID)
	if err != nil {
		return nil, err
	}
	if !order.Mutable() {
		return nil, &domain.InvalidTransitionError{Status: order.Status, Action: "update"}
	}

	products := make([]domain.Product, 0, len(lines))
	for _, line := range lines {
		product, err := readProduct(ctx, tx, line.ProductID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, &domain.ProductNotFoundError{ProductID: line.ProductID}
			}
			return nil, err
		}
		products = append(products, *product)
	}

	items, total := domain.PriceLines(lines, products)
	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET order_type = $1, total_amount = $2, updated_at = $3
		WHERE id = $4
	`, orderType, total, now, id)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return nil, err
	}
	if err := insertItems(ctx, tx, id, items); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order.OrderType = orderType
	order.Items = items
	order.TotalAmount = total
	order.UpdatedAt = now
	return order, nil
}

// Cancel moves a pending order to cancelled. When the repository was built
// with WithRestockOnCancel, the order's quantities go back to stock in the
// same transaction.
func (r *OrderRepository) Cancel(ctx context.Context, id, userID string) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := lockOrder(ctx, tx, id, userID)
	if err != nil {
		return nil, err
	}
	if !order.Mutable() {
		return nil, &domain.InvalidTransitionError{Status: order.Status, Action: "cancel"}
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3
	`, domain.OrderStatusCancelled, now, id)
	if err != nil {
		return nil, err
	}

	if r.restockOnCancel {
		items, err := itemsInTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if err := restock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = now
	return order, nil
}

// MarkConfirmed records a verified payment. Only pending orders confirm;
// anything else is an invalid transition.
func (r *OrderRepository) MarkConfirmed(ctx context.Context, id string) (*domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, domain.OrderStatusConfirmed, id, domain.OrderStatusPending)
	if err != nil {
		return nil, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var status domain.OrderStatus
		err := r.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, &domain.InvalidTransitionError{Status: status, Action: "confirm"}
	}

	order := &domain.Order{}
	err = r.db.QueryRowContext(ctx, `
		SELECT id, user_id, order_type, total_amount, status, created_at, updated_at
		FROM orders WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.OrderType, &order.TotalAmount,
		&order.Status, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanItems(rows)
}

func itemsInTx(ctx context.Context, tx *sql.Tx, orderID string) ([]domain.OrderItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]domain.OrderItem, error) {
	items := []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func insertItems(ctx context.Context, tx *sql.Tx, orderID string, items []domain.OrderItem) error {
	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New().String(), orderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

// lockProduct reads a product row under FOR UPDATE so the stock check and
// the later decrement are serialized against concurrent placements.
func lockProduct(ctx context.Context, tx *sql.Tx, productID string) (*domain.Product, error) {
	product := &domain.Product{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), price, stock_quantity, status, created_at, updated_at
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&product.ID, &product.Name, &product.Description, &product.Price,
		&product.StockQuantity, &product.Status, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func readProduct(ctx context.Context, tx *sql.Tx, productID string) (*domain.Product, error) {
	product := &domain.Product{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), price, stock_quantity, status, created_at, updated_at
		FROM products
		WHERE id = $1
	`, productID).Scan(&product.ID, &product.Name, &product.Description, &product.Price,
		&product.StockQuantity, &product.Status, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func lockOrder(ctx context.Context, tx *sql.Tx, id, userID string) (*domain.Order, error) {
	order := &domain.Order{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, user_id, order_type, total_amount, status, created_at, updated_at
		FROM orders
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, id, userID).Scan(&order.ID, &order.UserID, &order.OrderType, &order.TotalAmount,
		&order.Status, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// decrementStock assumes the caller holds the row lock and has verified
// availability; the guard in the WHERE clause is the database-level backstop
// for the stock_quantity >= 0 invariant.
func decrementStock(ctx context.Context, tx *sql.Tx, productID string, quantity int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2,
		    status = CASE WHEN stock_quantity - $2 <= 0 THEN 'out-of-stock' ELSE 'in-stock' END,
		    updated_at = NOW()
		WHERE id = $1 AND stock_quantity >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("stock decrement lost for product %s", productID)
	}
	return nil
}

func restock(ctx context.Context, tx *sql.Tx, productID string, quantity int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2,
		    status = 'in-stock',
		    updated_at = NOW()
		WHERE id = $1
	`, productID, quantity)
	return err
}
