package pricing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/example/checkout-engine/internal/domain/address"
)

// Coordinator drives the tax and shipping collaborators and combines their
// results into one authoritative breakdown.
type Coordinator struct {
	tax      TaxCalculator
	shipping ShippingCalculator
	logger   zerolog.Logger
}

func NewCoordinator(tax TaxCalculator, shipping ShippingCalculator, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		tax:      tax,
		shipping: shipping,
		logger:   logger.With().Str("component", "pricing").Logger(),
	}
}

// ComputeTotals prices the given items for the destination and shipping
// method. An unavailable shipping method surfaces as ErrShippingUnavailable
// without retry. The tax exemption rule lives here, not inside the tax
// collaborator, so every exemption decision is auditable in one place.
func (c *Coordinator) ComputeTotals(ctx context.Context, addr address.Address, items []Item, currency, method string, customer *CustomerInfo) (*Breakdown, error) {
	subtotal := 0
	for _, item := range items {
		subtotal += item.UnitPrice * item.Quantity
	}

	quote, err := c.shipping.Calculate(ctx, addr, items, method, currency)
	if err != nil {
		return nil, fmt.Errorf("shipping calculation: %w", err)
	}
	if !quote.Available {
		return nil, fmt.Errorf("%w: %s to %s", ErrShippingUnavailable, method, addr.CountryCode)
	}

	breakdown := &Breakdown{
		Currency:          currency,
		Subtotal:          subtotal,
		ShippingTotal:     quote.Cost,
		EstimatedDelivery: quote.EstimatedDelivery,
	}

	if customer.TaxExempt() {
		c.logger.Debug().Str("tax_id", customer.TaxID).Msg("customer is tax exempt, skipping tax calculation")
	} else {
		tax, err := c.tax.Calculate(ctx, addr, items, currency, customer)
		if err != nil {
			return nil, fmt.Errorf("tax calculation: %w", err)
		}
		breakdown.TaxTotal = tax.Total
		breakdown.TaxLines = tax.Breakdown
	}

	breakdown.GrandTotal = breakdown.Subtotal + breakdown.TaxTotal + breakdown.ShippingTotal
	return breakdown, nil
}

// ListShippingMethods forwards to the shipping collaborator.
func (c *Coordinator) ListShippingMethods(ctx context.Context, addr address.Address, items []Item) ([]ShippingMethod, error) {
	return c.shipping.ListAvailableMethods(ctx, addr, items)
}
