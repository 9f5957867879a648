package pricing

import (
	"context"
	"strings"
	"time"

	"github.com/example/checkout-engine/internal/domain/address"
)

// RateTableTax is the default TaxCalculator: a flat per-country rate in
// basis points applied to the item subtotal.
type RateTableTax struct {
	rates       map[string]int // country -> basis points
	defaultRate int
}

func NewRateTableTax() *RateTableTax {
	return &RateTableTax{
		rates: map[string]int{
			"US": 875,  // blended state+local
			"CA": 1300, // HST
			"GB": 2000, // VAT
			"DE": 1900,
			"FR": 2000,
			"JP": 1000,
			"AU": 1000,
		},
		defaultRate: 0,
	}
}

func (t *RateTableTax) Calculate(ctx context.Context, addr address.Address, items []Item, currency string, customer *CustomerInfo) (*TaxResult, error) {
	rate, ok := t.rates[strings.ToUpper(addr.CountryCode)]
	if !ok {
		rate = t.defaultRate
	}

	subtotal := 0
	for _, item := range items {
		subtotal += item.UnitPrice * item.Quantity
	}

	total := subtotal * rate / 10000
	result := &TaxResult{Total: total}
	if total > 0 {
		result.Breakdown = []TaxLine{{Name: strings.ToUpper(addr.CountryCode) + " sales tax", Amount: total}}
	}
	return result, nil
}

type shippingRate struct {
	name        string
	description string
	baseCost    int
	perKilogram int
	days        int
	maxGrams    int
}

// TieredShipping is the default ShippingCalculator: base cost plus a per-kg
// charge, with a per-method weight ceiling. Methods above their ceiling or
// unknown methods are unavailable rather than an error.
type TieredShipping struct {
	rates map[string]shippingRate
	clock func() time.Time
}

func NewTieredShipping(clock func() time.Time) *TieredShipping {
	if clock == nil {
		clock = time.Now
	}
	return &TieredShipping{
		clock: clock,
		rates: map[string]shippingRate{
			"standard":  {name: "Standard", description: "5-7 business days", baseCost: 599, perKilogram: 100, days: 7, maxGrams: 30000},
			"express":   {name: "Express", description: "2-3 business days", baseCost: 1499, perKilogram: 250, days: 3, maxGrams: 20000},
			"overnight": {name: "Overnight", description: "Next business day", baseCost: 2999, perKilogram: 500, days: 1, maxGrams: 10000},
		},
	}
}

func (s *TieredShipping) Calculate(ctx context.Context, addr address.Address, items []Item, method, currency string) (*ShippingQuote, error) {
	rate, ok := s.rates[method]
	if !ok {
		return &ShippingQuote{Available: false}, nil
	}

	totalGrams := 0
	for _, item := range items {
		totalGrams += item.WeightGrams * item.Quantity
	}
	if rate.maxGrams > 0 && totalGrams > rate.maxGrams {
		return &ShippingQuote{Available: false}, nil
	}

	cost := rate.baseCost + rate.perKilogram*((totalGrams+999)/1000)
	return &ShippingQuote{
		Cost:              cost,
		EstimatedDelivery: s.clock().AddDate(0, 0, rate.days),
		Available:         true,
	}, nil
}

func (s *TieredShipping) ListAvailableMethods(ctx context.Context, addr address.Address, items []Item) ([]ShippingMethod, error) {
	var methods []ShippingMethod
	for code, rate := range s.rates {
		quote, err := s.Calculate(ctx, addr, items, code, "")
		if err != nil {
			return nil, err
		}
		if quote.Available {
			methods = append(methods, ShippingMethod{Code: code, Name: rate.name, Description: rate.description})
		}
	}
	return methods, nil
}
