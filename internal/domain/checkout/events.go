package checkout

import "time"

// Lifecycle event types published to the checkout stream.
const (
	EventSessionCreated     = "checkout.session.created"
	EventSessionCompleted   = "checkout.session.completed"
	EventSessionExpired     = "checkout.session.expired"
	EventReservationRelease = "checkout.reservation.released"
)

type SessionCreated struct {
	SessionID  string    `json:"session_id"`
	CartID     string    `json:"cart_id"`
	Currency   string    `json:"currency"`
	GrandTotal int       `json:"grand_total"`
	ItemCount  int       `json:"item_count"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type SessionCompleted struct {
	SessionID   string    `json:"session_id"`
	CartID      string    `json:"cart_id"`
	GrandTotal  int       `json:"grand_total"`
	Currency    string    `json:"currency"`
	CompletedAt time.Time `json:"completed_at"`
}

type SessionExpired struct {
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason"`
	Released  int       `json:"released_reservations"`
	ExpiredAt time.Time `json:"expired_at"`
}

type ReservationReleased struct {
	ReservationID string    `json:"reservation_id"`
	SessionID     string    `json:"session_id"`
	ProductID     string    `json:"product_id"`
	SKU           string    `json:"sku"`
	Quantity      int       `json:"quantity"`
	Reason        string    `json:"reason"`
	ReleasedAt    time.Time `json:"released_at"`
}
