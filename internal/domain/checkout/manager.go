package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/checkout-engine/internal/domain/address"
	"github.com/example/checkout-engine/internal/domain/inventory"
	"github.com/example/checkout-engine/internal/domain/pricing"
	"github.com/example/checkout-engine/internal/domain/reservation"
	"github.com/example/checkout-engine/internal/metrics"
)

// Manager orchestrates the checkout session lifecycle. All durable writes
// of a single operation share one transaction, so a failure at any step
// leaves no partial state behind.
type Manager struct {
	store     Store
	carts     CartReader
	addresses address.Resolver
	pricing   *pricing.Coordinator
	ledger    *reservation.Ledger
	publisher Publisher
	clock     func() time.Time
	ttl       time.Duration
	logger    zerolog.Logger
}

type ManagerConfig struct {
	Store     Store
	Carts     CartReader
	Addresses address.Resolver
	Pricing   *pricing.Coordinator
	Ledger    *reservation.Ledger
	Publisher Publisher       // optional
	Clock     func() time.Time // optional, defaults to time.Now
	TTL       time.Duration   // optional, defaults to SessionTTL
}

func NewManager(cfg ManagerConfig, logger zerolog.Logger) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = SessionTTL
	}
	return &Manager{
		store:     cfg.Store,
		carts:     cfg.Carts,
		addresses: cfg.Addresses,
		pricing:   cfg.Pricing,
		ledger:    cfg.Ledger,
		publisher: cfg.Publisher,
		clock:     cfg.Clock,
		ttl:       cfg.TTL,
		logger:    logger.With().Str("component", "checkout-manager").Logger(),
	}
}

// Actor identifies the caller: an authenticated user id, or a guest token
// for anonymous carts. At most one of the two is expected.
type Actor struct {
	UserID     string
	GuestToken string
}

type CreateSessionInput struct {
	CartID          string
	ShippingAddress address.Address
	BillingAddress  address.Address
	ShippingMethod  string
	Customer        *pricing.CustomerInfo
	Actor           Actor
}

// SessionSummary is the result of a successful session creation.
type SessionSummary struct {
	SessionID        string             `json:"session_id"`
	Breakdown        *pricing.Breakdown `json:"breakdown"`
	ExpiresAt        time.Time          `json:"expires_at"`
	PaymentProviders []string           `json:"payment_providers"`
}

// SessionDetail is the full read view of a session.
type SessionDetail struct {
	Session          *Session                   `json:"session"`
	Reservations     []*reservation.Reservation `json:"reservations"`
	PaymentProviders []string                   `json:"payment_providers"`
}

// CreateSession runs the whole create flow: load and authorize the cart,
// re-price its items, validate and resolve both addresses, compute totals,
// then reserve stock and persist the session row inside one transaction.
// Business-rule failures happen before any durable write to the engine's
// own store; a partial reservation never survives a failed call.
func (m *Manager) CreateSession(ctx context.Context, in CreateSessionInput) (*SessionSummary, error) {
	cart, err := m.carts.GetCartWithItems(ctx, in.CartID)
	if err != nil {
		return nil, err
	}
	if err := m.authorizeCart(ctx, cart, in.Actor); err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	if err := in.ShippingAddress.Validate(); err != nil {
		return nil, fmt.Errorf("shipping address: %w", err)
	}
	if err := in.BillingAddress.Validate(); err != nil {
		return nil, fmt.Errorf("billing address: %w", err)
	}

	shippingAddrID, err := m.addresses.ResolveOrCreate(ctx, in.ShippingAddress, cart.OwnerID, address.TypeShipping)
	if err != nil {
		return nil, fmt.Errorf("resolve shipping address: %w", err)
	}
	billingAddrID, err := m.addresses.ResolveOrCreate(ctx, in.BillingAddress, cart.OwnerID, address.TypeBilling)
	if err != nil {
		return nil, fmt.Errorf("resolve billing address: %w", err)
	}

	// Totals are computed before any stock is touched: an unavailable
	// shipping method must not leave holds behind.
	breakdown, err := m.pricing.ComputeTotals(ctx, in.ShippingAddress, pricingItems(cart.Items), cart.Currency, in.ShippingMethod, in.Customer)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	session := &Session{
		ID:                uuid.New().String(),
		CartID:            cart.ID,
		ShippingAddressID: shippingAddrID,
		BillingAddressID:  billingAddrID,
		ShippingMethod:    in.ShippingMethod,
		Currency:          cart.Currency,
		Subtotal:          breakdown.Subtotal,
		TaxTotal:          breakdown.TaxTotal,
		ShippingTotal:     breakdown.ShippingTotal,
		GrandTotal:        breakdown.GrandTotal,
		Status:            StatusActive,
		ExpiresAt:         now.Add(m.ttl),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = m.store.WithinTx(ctx, func(tx Tx) error {
		if _, err := m.ledger.ReserveAll(ctx, tx, session.ID, session.ExpiresAt, reservationItems(cart.Items)); err != nil {
			return err
		}
		return tx.Sessions().Insert(ctx, session)
	})
	if err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			metrics.InsufficientStock.Inc()
		}
		return nil, err
	}

	metrics.SessionsCreated.Inc()
	m.logger.Info().
		Str("session_id", session.ID).
		Str("cart_id", cart.ID).
		Int("grand_total", session.GrandTotal).
		Time("expires_at", session.ExpiresAt).
		Msg("checkout session created")

	m.publish(ctx, session.ID, EventSessionCreated, SessionCreated{
		SessionID:  session.ID,
		CartID:     cart.ID,
		Currency:   session.Currency,
		GrandTotal: session.GrandTotal,
		ItemCount:  len(cart.Items),
		ExpiresAt:  session.ExpiresAt,
		CreatedAt:  now,
	})

	return &SessionSummary{
		SessionID:        session.ID,
		Breakdown:        breakdown,
		ExpiresAt:        session.ExpiresAt,
		PaymentProviders: PaymentProviderHints(session.Currency),
	}, nil
}

// GetSession returns the session with its reservations. Ownership and
// expiry are re-checked on every read; an expired-but-unswept session
// already reads as expired here.
func (m *Manager) GetSession(ctx context.Context, id string, actor Actor) (*SessionDetail, error) {
	session, err := m.store.Sessions().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	cart, err := m.carts.GetCartWithItems(ctx, session.CartID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			// The cart service cleaned up the cart. Without it ownership can
			// no longer be proven, so nobody gets to read the session.
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	if err := m.authorizeCart(ctx, cart, actor); err != nil {
		return nil, err
	}

	if session.Expired(m.clock()) {
		return nil, fmt.Errorf("session %s: %w", id, ErrExpired)
	}

	reservations, err := m.store.Reservations().ListBySession(ctx, id)
	if err != nil {
		return nil, err
	}

	return &SessionDetail{
		Session:          session,
		Reservations:     reservations,
		PaymentProviders: PaymentProviderHints(session.Currency),
	}, nil
}

// ReleaseReservations releases every active reservation of the session,
// restores inventory, and marks the session expired. Idempotent: releasing
// an already expired or released session succeeds without touching stock
// again. A completed session is left alone.
func (m *Manager) ReleaseReservations(ctx context.Context, id, reason string) error {
	var (
		released []*reservation.Reservation
		changed  bool
	)

	err := m.store.WithinTx(ctx, func(tx Tx) error {
		session, err := tx.Sessions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch session.Status {
		case StatusCompleted, StatusExpired:
			return nil
		}

		reservations, err := tx.Reservations().ListBySession(ctx, id)
		if err != nil {
			return err
		}
		for _, r := range reservations {
			if !r.Active() {
				continue
			}
			if err := m.ledger.Release(ctx, tx, r.ID, reason); err != nil {
				return err
			}
			released = append(released, r)
		}

		if !session.CanTransitionTo(StatusExpired) {
			return session.transitionError(StatusExpired)
		}
		if err := tx.Sessions().SetStatus(ctx, id, StatusExpired, m.clock(), reason); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	metrics.SessionsExpired.Inc()
	for _, r := range released {
		metrics.ReservationsReleased.Inc()
		m.publish(ctx, id, EventReservationRelease, ReservationReleased{
			ReservationID: r.ID,
			SessionID:     id,
			ProductID:     r.ProductID,
			SKU:           r.SKU,
			Quantity:      r.Quantity,
			Reason:        reason,
			ReleasedAt:    m.clock(),
		})
	}
	m.publish(ctx, id, EventSessionExpired, SessionExpired{
		SessionID: id,
		Reason:    reason,
		Released:  len(released),
		ExpiredAt: m.clock(),
	})

	m.logger.Info().
		Str("session_id", id).
		Str("reason", reason).
		Int("released", len(released)).
		Msg("checkout session released")
	return nil
}

// ConfirmReservations confirms every active reservation and completes the
// session. The expiry check runs inside the same transaction that performs
// the transition, which closes the race against the reclaim sweep: either
// this commit wins and the sweep sees a completed session, or the sweep won
// and this call observes the expiry.
func (m *Manager) ConfirmReservations(ctx context.Context, id string) error {
	var session *Session

	err := m.store.WithinTx(ctx, func(tx Tx) error {
		s, err := tx.Sessions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		session = s

		if s.Expired(m.clock()) {
			return fmt.Errorf("session %s: %w", id, ErrExpired)
		}
		if !s.CanTransitionTo(StatusCompleted) {
			return s.transitionError(StatusCompleted)
		}

		reservations, err := tx.Reservations().ListBySession(ctx, id)
		if err != nil {
			return err
		}
		for _, r := range reservations {
			if !r.Active() {
				continue
			}
			if err := m.ledger.Confirm(ctx, tx, r.ID); err != nil {
				return err
			}
		}

		return tx.Sessions().SetStatus(ctx, id, StatusCompleted, m.clock(), "")
	})
	if err != nil {
		return err
	}

	metrics.SessionsCompleted.Inc()
	m.publish(ctx, id, EventSessionCompleted, SessionCompleted{
		SessionID:   id,
		CartID:      session.CartID,
		GrandTotal:  session.GrandTotal,
		Currency:    session.Currency,
		CompletedAt: m.clock(),
	})

	m.logger.Info().Str("session_id", id).Msg("checkout session completed")
	return nil
}

// MarkFailed records a failure on an active session. The holds are kept:
// only an explicit release or the expiry sweep returns the stock.
func (m *Manager) MarkFailed(ctx context.Context, id, reason string) error {
	return m.store.WithinTx(ctx, func(tx Tx) error {
		session, err := tx.Sessions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !session.CanTransitionTo(StatusFailed) {
			return session.transitionError(StatusFailed)
		}
		return tx.Sessions().SetStatus(ctx, id, StatusFailed, m.clock(), reason)
	})
}

func (m *Manager) authorizeCart(ctx context.Context, cart *Cart, actor Actor) error {
	if cart.OwnerID != "" {
		if actor.UserID != cart.OwnerID {
			return fmt.Errorf("cart %s: %w", cart.ID, ErrAccessDenied)
		}
		return nil
	}

	// Anonymous cart: only anonymous callers may use it. A guest token, when
	// presented, must match the one the cart was created with.
	if actor.UserID != "" {
		return fmt.Errorf("cart %s: %w", cart.ID, ErrAccessDenied)
	}
	if actor.GuestToken != "" {
		ok, err := m.carts.VerifyGuestToken(ctx, cart.ID, actor.GuestToken)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("cart %s: %w", cart.ID, ErrAccessDenied)
		}
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, key, eventType string, payload any) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, key, eventType, payload); err != nil {
		m.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish lifecycle event")
	}
}

func pricingItems(items []CartItem) []pricing.Item {
	out := make([]pricing.Item, len(items))
	for i, item := range items {
		out[i] = pricing.Item{
			ProductID:   item.ProductID,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			WeightGrams: item.WeightGrams,
		}
	}
	return out
}

func reservationItems(items []CartItem) []reservation.Item {
	out := make([]reservation.Item, len(items))
	for i, item := range items {
		out[i] = reservation.Item{
			LineItemID: item.LineItemID,
			ProductID:  item.ProductID,
			SKU:        item.SKU,
			Quantity:   item.Quantity,
		}
	}
	return out
}
