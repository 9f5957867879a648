package checkout

import (
	"errors"
	"fmt"
	"time"
)

// SessionTTL is the fixed, non-renewable checkout window.
const SessionTTL = 15 * time.Minute

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrCartNotFound     = errors.New("cart not found")
	ErrEmptyCart        = errors.New("cart has no items")
	ErrNotFound         = errors.New("checkout session not found")
	ErrAccessDenied     = errors.New("access denied")
	ErrExpired          = errors.New("checkout session has expired")
	ErrInvalidStatus    = errors.New("invalid session status transition")
	ErrAlreadyCompleted = errors.New("checkout session is already completed")
)

// validTransitions defines allowed state transitions. A failed session keeps
// holding stock, so failed may still move to expired when a release occurs.
var validTransitions = map[Status][]Status{
	StatusActive:    {StatusCompleted, StatusFailed, StatusExpired},
	StatusFailed:    {StatusExpired},
	StatusCompleted: {}, // terminal
	StatusExpired:   {}, // terminal
}

// Session is a time-boxed intent to purchase: computed totals plus held
// stock. ExpiresAt is fixed at creation and never extended.
type Session struct {
	ID                string     `json:"id"`
	CartID            string     `json:"cart_id"`
	ShippingAddressID string     `json:"shipping_address_id"`
	BillingAddressID  string     `json:"billing_address_id"`
	ShippingMethod    string     `json:"shipping_method"`
	Currency          string     `json:"currency"`
	Subtotal          int        `json:"subtotal"`
	TaxTotal          int        `json:"tax_total"`
	ShippingTotal     int        `json:"shipping_total"`
	GrandTotal        int        `json:"grand_total"`
	Status            Status     `json:"status"`
	ExpiresAt         time.Time  `json:"expires_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	FailedAt          *time.Time `json:"failed_at,omitempty"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Expired reports whether the session's window has passed, regardless of
// whether the reclaim sweep has caught up with it yet.
func (s *Session) Expired(now time.Time) bool {
	if s.Status == StatusExpired {
		return true
	}
	return s.Status == StatusActive && now.After(s.ExpiresAt)
}

// CanTransitionTo checks if the session can move to the target status.
func (s *Session) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[s.Status]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition.
func (s *Session) transitionError(target Status) error {
	switch {
	case s.Status == StatusCompleted:
		return ErrAlreadyCompleted
	case s.Status == StatusExpired:
		return ErrExpired
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, s.Status, target)
	}
}
