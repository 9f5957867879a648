package reservation

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusConfirmed Status = "confirmed"
	StatusReleased  Status = "released"
)

// Release reasons recorded on released reservations.
const (
	ReleaseReasonExpired   = "session_expired"
	ReleaseReasonRequested = "release_requested"
)

var (
	ErrNotFound        = errors.New("reservation not found")
	ErrInvalidQuantity = errors.New("reservation quantity must be positive")
	ErrNotActive       = errors.New("reservation is not active")
	ErrExpired         = errors.New("reservation has expired")
)

// Reservation is a single line item's stock hold tied to a checkout session.
// Status is monotonic: active moves to confirmed or released, both terminal.
type Reservation struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"session_id"`
	LineItemID    string     `json:"line_item_id"`
	ProductID     string     `json:"product_id"`
	SKU           string     `json:"sku"`
	Quantity      int        `json:"quantity"`
	Status        Status     `json:"status"`
	ExpiresAt     time.Time  `json:"expires_at"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	ReleaseReason string     `json:"release_reason,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Active reports whether the reservation still holds stock.
func (r *Reservation) Active() bool {
	return r.Status == StatusActive
}

// Repository is the persistence surface for reservations. MarkReleased and
// MarkConfirmed only apply to rows still in the active state so a terminal
// transition can never happen twice.
type Repository interface {
	Insert(ctx context.Context, r *Reservation) error
	Get(ctx context.Context, id string) (*Reservation, error)
	ListBySession(ctx context.Context, sessionID string) ([]*Reservation, error)
	MarkReleased(ctx context.Context, id, reason string, at time.Time) error
	MarkConfirmed(ctx context.Context, id string, at time.Time) error
}
