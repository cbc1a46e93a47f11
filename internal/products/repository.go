package products

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/quenchlabs/beverage-api/internal/domain"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, name, description string, price int64, stock int) (*domain.Product, error) {
	now := time.Now().UTC()
	product := &domain.Product{
		ID:            uuid.New().String(),
		Name:          name,
		Description:   description,
		Price:         price,
		StockQuantity: stock,
		Status:        domain.StockStatus(stock),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, stock_quantity, status, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $7)
	`, product.ID, product.Name, product.Description, product.Price,
		product.StockQuantity, product.Status, product.CreatedAt)
	if err != nil {
		return nil, err
	}

	return product, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	product := &domain.Product{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), price, stock_quantity, status, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Description, &product.Price,
		&product.StockQuantity, &product.Status, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.ProductNotFoundError{ProductID: id}
		}
		return nil, err
	}
	return product, nil
}

// ListFilter narrows and pages the product listing.
type ListFilter struct {
	Page   int
	Limit  int
	Status domain.ProductStatus
}

// List returns a page of products, newest first, plus the total count for
// the filter.
func (r *ProductRepository) List(ctx context.Context, filter ListFilter) ([]domain.Product, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	offset := (filter.Page - 1) * filter.Limit

	var total int
	countQuery := `SELECT COUNT(*) FROM products`
	listQuery := `
		SELECT id, name, COALESCE(description, ''), price, stock_quantity, status, created_at, updated_at
		FROM products`
	args := []any{}
	if filter.Status != "" {
		countQuery += ` WHERE status = $1`
		listQuery += ` WHERE status = $1`
		args = append(args, filter.Status)
	}

	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery += ` ORDER BY created_at DESC`
	if filter.Status != "" {
		listQuery += ` LIMIT $2 OFFSET $3`
	} else {
		listQuery += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, filter.Limit, offset)

	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	items, err := scanProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *ProductRepository) Update(ctx context.Context, id, name, description string, price int64, stock int) (*domain.Product, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = NULLIF($3, ''), price = $4, stock_quantity = $5,
		    status = $6, updated_at = NOW()
		WHERE id = $1
	`, id, name, description, price, stock, domain.StockStatus(stock))
	if err != nil {
		return nil, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &domain.ProductNotFoundError{ProductID: id}
	}

	return r.GetByID(ctx, id)
}

// Delete removes a product unless any order line still references it. The
// order_items foreign key is the arbiter, so a placement racing the delete
// cannot slip a reference past a separate existence check.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return domain.ErrProductInUse
		}
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &domain.ProductNotFoundError{ProductID: id}
	}
	return nil
}

// LowStock lists products under the threshold, lowest stock first.
func (r *ProductRepository) LowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), price, stock_quantity, status, created_at, updated_at
		FROM products
		WHERE stock_quantity < $1
		ORDER BY stock_quantity ASC
	`, threshold)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanProducts(rows)
}

func scanProducts(rows *sql.Rows) ([]domain.Product, error) {
	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price,
			&p.StockQuantity, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
