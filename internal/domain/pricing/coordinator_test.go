package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/checkout-engine/internal/domain/address"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestCoordinator() *Coordinator {
	return NewCoordinator(NewRateTableTax(), NewTieredShipping(fixedClock), zerolog.Nop())
}

func usAddress() address.Address {
	return address.Address{
		Name:        "Jordan Doe",
		Line1:       "1 Main St",
		City:        "Springfield",
		Region:      "IL",
		PostalCode:  "62701",
		CountryCode: "US",
	}
}

// ============================================
// ComputeTotals
// ============================================

func TestCoordinator_ComputeTotals_SumsComponents(t *testing.T) {
	c := newTestCoordinator()

	items := []Item{
		{ProductID: "p1", SKU: "S1", Quantity: 2, UnitPrice: 1000, WeightGrams: 500},
		{ProductID: "p2", SKU: "S2", Quantity: 1, UnitPrice: 2500, WeightGrams: 1200},
	}

	breakdown, err := c.ComputeTotals(context.Background(), usAddress(), items, "usd", "standard", nil)

	require.NoError(t, err)
	assert.Equal(t, 4500, breakdown.Subtotal)
	// 4500 * 8.75% = 393 (integer floor)
	assert.Equal(t, 393, breakdown.TaxTotal)
	// standard: 599 base + 100/kg over 2200g -> 3kg billed
	assert.Equal(t, 899, breakdown.ShippingTotal)
	assert.Equal(t, breakdown.Subtotal+breakdown.TaxTotal+breakdown.ShippingTotal, breakdown.GrandTotal)
	assert.Equal(t, fixedClock().AddDate(0, 0, 7), breakdown.EstimatedDelivery)
	require.Len(t, breakdown.TaxLines, 1)
	assert.Equal(t, "US sales tax", breakdown.TaxLines[0].Name)
}

func TestCoordinator_ComputeTotals_TaxExemptBusiness(t *testing.T) {
	c := newTestCoordinator()
	items := []Item{{ProductID: "p1", Quantity: 1, UnitPrice: 10000, WeightGrams: 100}}

	tests := []struct {
		name      string
		customer  *CustomerInfo
		wantTaxed bool
	}{
		{name: "nil customer", customer: nil, wantTaxed: true},
		{name: "consumer", customer: &CustomerInfo{Type: "individual"}, wantTaxed: true},
		{name: "business without tax id", customer: &CustomerInfo{Type: CustomerTypeBusiness}, wantTaxed: true},
		{name: "business with tax id", customer: &CustomerInfo{Type: CustomerTypeBusiness, TaxID: "US-12-3456789"}, wantTaxed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breakdown, err := c.ComputeTotals(context.Background(), usAddress(), items, "usd", "standard", tt.customer)
			require.NoError(t, err)
			if tt.wantTaxed {
				assert.Positive(t, breakdown.TaxTotal)
			} else {
				assert.Zero(t, breakdown.TaxTotal)
			}
			assert.Equal(t, breakdown.Subtotal+breakdown.TaxTotal+breakdown.ShippingTotal, breakdown.GrandTotal)
		})
	}
}

func TestCoordinator_ComputeTotals_UnknownMethod(t *testing.T) {
	c := newTestCoordinator()
	items := []Item{{ProductID: "p1", Quantity: 1, UnitPrice: 1000, WeightGrams: 100}}

	_, err := c.ComputeTotals(context.Background(), usAddress(), items, "usd", "drone", nil)

	assert.ErrorIs(t, err, ErrShippingUnavailable)
}

func TestCoordinator_ComputeTotals_OverweightMethod(t *testing.T) {
	c := newTestCoordinator()
	// 12kg exceeds the overnight ceiling but fits standard.
	items := []Item{{ProductID: "p1", Quantity: 12, UnitPrice: 1000, WeightGrams: 1000}}

	_, err := c.ComputeTotals(context.Background(), usAddress(), items, "usd", "overnight", nil)
	assert.ErrorIs(t, err, ErrShippingUnavailable)

	breakdown, err := c.ComputeTotals(context.Background(), usAddress(), items, "usd", "standard", nil)
	require.NoError(t, err)
	assert.Positive(t, breakdown.ShippingTotal)
}

func TestCoordinator_ListShippingMethods(t *testing.T) {
	c := newTestCoordinator()
	items := []Item{{ProductID: "p1", Quantity: 1, UnitPrice: 1000, WeightGrams: 100}}

	methods, err := c.ListShippingMethods(context.Background(), usAddress(), items)

	require.NoError(t, err)
	assert.Len(t, methods, 3)
}

// ============================================
// RateTableTax
// ============================================

func TestRateTableTax_Calculate(t *testing.T) {
	tax := NewRateTableTax()
	items := []Item{{Quantity: 2, UnitPrice: 5000}}

	tests := []struct {
		country string
		want    int
	}{
		{country: "US", want: 875},
		{country: "GB", want: 2000},
		{country: "de", want: 1900}, // case-insensitive
		{country: "XX", want: 0},    // unknown country: no tax
	}

	for _, tt := range tests {
		t.Run(tt.country, func(t *testing.T) {
			addr := usAddress()
			addr.CountryCode = tt.country
			result, err := tax.Calculate(context.Background(), addr, items, "usd", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Total)
		})
	}
}

// ============================================
// TieredShipping
// ============================================

func TestTieredShipping_Calculate_WeightBilling(t *testing.T) {
	s := NewTieredShipping(fixedClock)

	tests := []struct {
		name       string
		method     string
		totalGrams int
		wantCost   int
	}{
		{name: "standard one kg", method: "standard", totalGrams: 1000, wantCost: 699},
		{name: "standard partial kg rounds up", method: "standard", totalGrams: 1001, wantCost: 799},
		{name: "express", method: "express", totalGrams: 2000, wantCost: 1999},
		{name: "overnight", method: "overnight", totalGrams: 500, wantCost: 3499},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := []Item{{Quantity: 1, WeightGrams: tt.totalGrams}}
			quote, err := s.Calculate(context.Background(), usAddress(), items, tt.method, "usd")
			require.NoError(t, err)
			require.True(t, quote.Available)
			assert.Equal(t, tt.wantCost, quote.Cost)
		})
	}
}

func TestTieredShipping_ListAvailableMethods_FiltersByWeight(t *testing.T) {
	s := NewTieredShipping(fixedClock)

	// 15kg: fits standard and express, exceeds overnight's 10kg ceiling.
	items := []Item{{Quantity: 15, WeightGrams: 1000}}

	methods, err := s.ListAvailableMethods(context.Background(), usAddress(), items)

	require.NoError(t, err)
	codes := make([]string, len(methods))
	for i, m := range methods {
		codes[i] = m.Code
	}
	assert.ElementsMatch(t, []string{"standard", "express"}, codes)
}
