package domain

import "time"

type ProductStatus string

const (
	ProductInStock    ProductStatus = "in-stock"
	ProductOutOfStock ProductStatus = "out-of-stock"
)

// Product prices are in minor currency units (kobo), never floats.
type Product struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Price         int64         `json:"price"`
	StockQuantity int           `json:"stock_quantity"`
	Status        ProductStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// StockStatus derives the listed status from a stock quantity.
func StockStatus(quantity int) ProductStatus {
	if quantity <= 0 {
		return ProductOutOfStock
	}
	return ProductInStock
}
