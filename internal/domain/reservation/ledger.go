package reservation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/checkout-engine/internal/domain/inventory"
)

// Tx is the transactional view the ledger operates on. Callers open the
// transaction; every ledger call made against the same Tx commits or rolls
// back as one unit.
type Tx interface {
	Reservations() Repository
	Inventory() inventory.Store
}

// Item describes one line item to reserve.
type Item struct {
	LineItemID string
	ProductID  string
	SKU        string
	Quantity   int
}

// Ledger owns the reservation lifecycle: it holds stock against checkout
// sessions, restores it on release, and consumes it on confirm.
type Ledger struct {
	clock  func() time.Time
	logger zerolog.Logger
}

func NewLedger(logger zerolog.Logger, clock func() time.Time) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		clock:  clock,
		logger: logger.With().Str("component", "reservation-ledger").Logger(),
	}
}

// ReserveAll decrements inventory and inserts one active reservation per
// item. Items are processed in ascending product id order so every call
// site acquires inventory row locks in the same order. Any failure leaves
// the transaction dirty; the caller must roll back, which undoes all prior
// decrements in this call.
func (l *Ledger) ReserveAll(ctx context.Context, tx Tx, sessionID string, expiresAt time.Time, items []Item) ([]*Reservation, error) {
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line item %s", ErrInvalidQuantity, item.LineItemID)
		}
	}

	ordered := make([]Item, len(items))
	copy(ordered, items)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })

	now := l.clock()
	reservations := make([]*Reservation, 0, len(ordered))
	for _, item := range ordered {
		if _, err := tx.Inventory().Adjust(ctx, item.ProductID, -item.Quantity, inventory.ReasonReservationHold, sessionID); err != nil {
			return nil, fmt.Errorf("reserve %s: %w", item.SKU, err)
		}

		r := &Reservation{
			ID:         uuid.New().String(),
			SessionID:  sessionID,
			LineItemID: item.LineItemID,
			ProductID:  item.ProductID,
			SKU:        item.SKU,
			Quantity:   item.Quantity,
			Status:     StatusActive,
			ExpiresAt:  expiresAt,
			CreatedAt:  now,
		}
		if err := tx.Reservations().Insert(ctx, r); err != nil {
			return nil, fmt.Errorf("insert reservation for %s: %w", item.SKU, err)
		}
		reservations = append(reservations, r)
	}

	return reservations, nil
}

// Release transitions an active reservation to released and restores its
// quantity to inventory. Releasing a reservation that already left the
// active state is a no-op, so inventory is only ever restored once.
func (l *Ledger) Release(ctx context.Context, tx Tx, reservationID, reason string) error {
	r, err := tx.Reservations().Get(ctx, reservationID)
	if err != nil {
		return err
	}
	if !r.Active() {
		return nil
	}

	if err := tx.Reservations().MarkReleased(ctx, r.ID, reason, l.clock()); err != nil {
		return fmt.Errorf("release reservation %s: %w", r.ID, err)
	}
	if _, err := tx.Inventory().Adjust(ctx, r.ProductID, r.Quantity, inventory.ReasonReservationRelease, r.SessionID); err != nil {
		return fmt.Errorf("restore stock for %s: %w", r.SKU, err)
	}
	return nil
}

// ReleaseSession releases every active reservation of a session and returns
// how many actually transitioned.
func (l *Ledger) ReleaseSession(ctx context.Context, tx Tx, sessionID, reason string) (int, error) {
	reservations, err := tx.Reservations().ListBySession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, r := range reservations {
		if !r.Active() {
			continue
		}
		if err := l.Release(ctx, tx, r.ID, reason); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

// Confirm transitions an active reservation to confirmed. The held stock is
// not restored: it is permanently consumed. Confirming past the reservation
// expiry fails so the reclaim sweep cannot be raced into oversell.
func (l *Ledger) Confirm(ctx context.Context, tx Tx, reservationID string) error {
	r, err := tx.Reservations().Get(ctx, reservationID)
	if err != nil {
		return err
	}
	if !r.Active() {
		return fmt.Errorf("confirm reservation %s: %w", r.ID, ErrNotActive)
	}
	now := l.clock()
	if now.After(r.ExpiresAt) {
		return fmt.Errorf("confirm reservation %s: %w", r.ID, ErrExpired)
	}
	if err := tx.Reservations().MarkConfirmed(ctx, r.ID, now); err != nil {
		return fmt.Errorf("confirm reservation %s: %w", r.ID, err)
	}
	return nil
}
