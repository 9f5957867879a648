package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/example/checkout-engine/internal/domain/address"
)

var ErrShippingUnavailable = errors.New("shipping method unavailable")

const CustomerTypeBusiness = "business"

// Item is a priced line item. Amounts are integer minor units (cents).
type Item struct {
	ProductID   string `json:"product_id"`
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int    `json:"unit_price"`
	WeightGrams int    `json:"weight_grams"`
}

// CustomerInfo carries the fields relevant to tax treatment.
type CustomerInfo struct {
	Type  string `json:"type"`
	TaxID string `json:"tax_id"`
}

// TaxExempt reports whether the customer qualifies for tax exemption:
// a business customer with a tax id on file.
func (c *CustomerInfo) TaxExempt() bool {
	return c != nil && c.Type == CustomerTypeBusiness && c.TaxID != ""
}

// TaxLine is one component of the computed tax.
type TaxLine struct {
	Name   string `json:"name"`
	Amount int    `json:"amount"`
}

// TaxResult is what a TaxCalculator returns.
type TaxResult struct {
	Total     int       `json:"total"`
	Breakdown []TaxLine `json:"breakdown,omitempty"`
}

// ShippingQuote is what a ShippingCalculator returns for a single method.
type ShippingQuote struct {
	Cost              int       `json:"cost"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
	Available         bool      `json:"available"`
}

// ShippingMethod describes a selectable shipping option.
type ShippingMethod struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TaxCalculator is the external tax collaborator.
type TaxCalculator interface {
	Calculate(ctx context.Context, addr address.Address, items []Item, currency string, customer *CustomerInfo) (*TaxResult, error)
}

// ShippingCalculator is the external shipping collaborator.
type ShippingCalculator interface {
	Calculate(ctx context.Context, addr address.Address, items []Item, method, currency string) (*ShippingQuote, error)
	ListAvailableMethods(ctx context.Context, addr address.Address, items []Item) ([]ShippingMethod, error)
}

// Breakdown is the authoritative price computation for a checkout session.
// Subtotal + TaxTotal + ShippingTotal always equals GrandTotal.
type Breakdown struct {
	Currency          string    `json:"currency"`
	Subtotal          int       `json:"subtotal"`
	TaxTotal          int       `json:"tax_total"`
	ShippingTotal     int       `json:"shipping_total"`
	GrandTotal        int       `json:"grand_total"`
	TaxLines          []TaxLine `json:"tax_lines,omitempty"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
}
