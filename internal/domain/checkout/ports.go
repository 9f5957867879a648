package checkout

import (
	"context"
	"time"

	"github.com/example/checkout-engine/internal/domain/inventory"
	"github.com/example/checkout-engine/internal/domain/reservation"
)

// SessionRepository is the persistence surface for checkout sessions.
type SessionRepository interface {
	Insert(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)

	// GetForUpdate locks the session row for the remainder of the enclosing
	// transaction. Only meaningful on a transactional repository.
	GetForUpdate(ctx context.Context, id string) (*Session, error)

	// SetStatus applies a status transition, stamping completed_at or
	// failed_at/failure_reason as appropriate for the target status.
	SetStatus(ctx context.Context, id string, status Status, at time.Time, reason string) error

	// ListExpired returns ids of active sessions whose expires_at is before
	// now, oldest first, up to limit.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Tx is the unit-of-work view spanning all three aggregates. Everything
// done through one Tx commits or rolls back atomically.
type Tx interface {
	reservation.Tx
	Sessions() SessionRepository
}

// Store opens units of work and provides autocommit access for plain reads.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Sessions() SessionRepository
	Reservations() reservation.Repository
	Inventory() inventory.Store
}

// CartItem is a cart line item re-priced against the current catalog.
type CartItem struct {
	LineItemID  string `json:"line_item_id"`
	ProductID   string `json:"product_id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int    `json:"unit_price"`
	WeightGrams int    `json:"weight_grams"`
}

// Cart is the external cart collaborator's view of a cart. OwnerID is empty
// for anonymous (guest) carts.
type Cart struct {
	ID       string     `json:"id"`
	Currency string     `json:"currency"`
	OwnerID  string     `json:"owner_id,omitempty"`
	Items    []CartItem `json:"items"`
}

// CartReader is the external cart collaborator.
type CartReader interface {
	// GetCartWithItems returns the cart with every line item priced at the
	// current catalog price, defending against stale cart prices.
	GetCartWithItems(ctx context.Context, cartID string) (*Cart, error)

	// VerifyGuestToken proves a guest caller owns an anonymous cart.
	VerifyGuestToken(ctx context.Context, cartID, token string) (bool, error)
}

// Publisher emits checkout lifecycle events after commit. Publishing is
// best effort; failures are logged, never surfaced to callers.
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, payload any) error
}
