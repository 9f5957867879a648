package inventory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProductNotFound   = errors.New("inventory record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// Adjustment reasons recorded on every ledger entry.
const (
	ReasonReservationHold    = "reservation_hold"
	ReasonReservationRelease = "reservation_release"
	ReasonRestock            = "restock"
	ReasonManualAdjust       = "manual_adjust"
)

// Record is the per-product stock row. Quantity is the currently available
// quantity, i.e. baseline stock minus all active holds.
type Record struct {
	ProductID         string    `json:"product_id"`
	Quantity          int       `json:"quantity"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// LowStock reports whether available quantity is at or below the threshold.
func (r *Record) LowStock() bool {
	return r.Quantity <= r.LowStockThreshold
}

// LedgerEntry is an immutable record of a single quantity change.
// Quantity is the resulting available quantity after applying Delta.
type LedgerEntry struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Delta     int       `json:"delta"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the inventory access surface. Adjust must be atomic: the update
// is conditioned on the resulting quantity staying non-negative, and every
// successful call appends exactly one ledger entry. When obtained from a
// transaction the operations share that transaction's guarantees.
type Store interface {
	Get(ctx context.Context, productID string) (*Record, error)

	// Adjust applies delta to the available quantity and returns the new
	// quantity. A decrement that would push the quantity below zero fails
	// with ErrInsufficientStock and leaves the record untouched.
	Adjust(ctx context.Context, productID string, delta int, reason, actor string) (int, error)

	// Ledger returns the most recent ledger entries for a product, newest
	// first, up to limit.
	Ledger(ctx context.Context, productID string, limit int) ([]LedgerEntry, error)
}
