package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type OrderType string

const (
	OrderTypeSingle OrderType = "single"
	OrderTypeGroup  OrderType = "group"
)

// OrderItem snapshots the product's name and unit price at order time;
// later product edits do not affect existing orders.
type OrderItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

type Order struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	OrderType   OrderType   `json:"order_type"`
	Items       []OrderItem `json:"items"`
	TotalAmount int64       `json:"total_amount"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Mutable reports whether the order's items and total may still change.
// Only pending orders can be updated or cancelled.
func (o *Order) Mutable() bool {
	return o.Status == OrderStatusPending
}

// Terminal reports whether no further transition is defined for the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusConfirmed || next == OrderStatusCancelled
	case OrderStatusConfirmed:
		return next == OrderStatusCompleted
	default:
		return false
	}
}

// OrderLine is a requested line item as it arrives on the wire:
// a product reference and a quantity, nothing else. Prices are always
// resolved server-side from the product record.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// MergeLines collapses duplicate product references into a single line,
// summing quantities, so a cart listing the same product twice is checked
// and priced against its combined demand. First-seen order is preserved.
func MergeLines(lines []OrderLine) []OrderLine {
	merged := make([]OrderLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

// PriceLines pairs each requested line with its resolved product,
// snapshotting the authoritative unit price, and returns the priced items
// together with the grand total. products[i] must be the product resolved
// for lines[i]. Pure function: no I/O, no side effects.
func PriceLines(lines []OrderLine, products []Product) ([]OrderItem, int64) {
	items := make([]OrderItem, 0, len(lines))
	var total int64
	for i, line := range lines {
		p := products[i]
		items = append(items, OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			UnitPrice:   p.Price,
		})
		total += int64(line.Quantity) * p.Price
	}
	return items, total
}
