package domain

import (
	"errors"
	"fmt"
)

// Terminal client-facing failures. Handlers match these with errors.Is /
// errors.As to pick a status code; none of them is ever retried.
var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrProductNotFound = errors.New("product not found")
	ErrProductInUse    = errors.New("product is referenced by an order")
	ErrEmailTaken      = errors.New("email already registered")
)

// ProductNotFoundError reports a line item referencing a product that does
// not exist. It unwraps to ErrProductNotFound.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error {
	return ErrProductNotFound
}

// InsufficientStockError reports a line item requesting more units than the
// product has in stock.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: %d available, %d requested",
		e.ProductID, e.Available, e.Requested)
}

// InvalidTransitionError reports an operation attempted on an order whose
// status does not permit it.
type InvalidTransitionError struct {
	Status OrderStatus
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s order in status %q", e.Action, e.Status)
}
