package address

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type Type string

const (
	TypeShipping Type = "shipping"
	TypeBilling  Type = "billing"
)

var ErrInvalid = errors.New("invalid address")

// Address is an immutable snapshot taken at checkout time. Guest addresses
// are never reused; addresses of authenticated users may be deduplicated by
// the resolver.
type Address struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Line1       string `json:"line1"`
	Line2       string `json:"line2,omitempty"`
	City        string `json:"city"`
	Region      string `json:"region,omitempty"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone,omitempty"`
}

// postalFormats holds per-country postal code formats. Countries without an
// entry only require a non-empty postal code.
var postalFormats = map[string]*regexp.Regexp{
	"US": regexp.MustCompile(`^\d{5}(-\d{4})?$`),
	"CA": regexp.MustCompile(`^[A-Za-z]\d[A-Za-z][ -]?\d[A-Za-z]\d$`),
	"GB": regexp.MustCompile(`^[A-Za-z]{1,2}\d[A-Za-z\d]?\s?\d[A-Za-z]{2}$`),
	"DE": regexp.MustCompile(`^\d{5}$`),
	"FR": regexp.MustCompile(`^\d{5}$`),
	"NL": regexp.MustCompile(`^\d{4}\s?[A-Za-z]{2}$`),
	"JP": regexp.MustCompile(`^\d{3}-?\d{4}$`),
	"AU": regexp.MustCompile(`^\d{4}$`),
	"BR": regexp.MustCompile(`^\d{5}-?\d{3}$`),
}

// Validate checks required fields and the country-specific postal format.
func (a *Address) Validate() error {
	switch {
	case strings.TrimSpace(a.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalid)
	case strings.TrimSpace(a.Line1) == "":
		return fmt.Errorf("%w: line1 is required", ErrInvalid)
	case strings.TrimSpace(a.City) == "":
		return fmt.Errorf("%w: city is required", ErrInvalid)
	case strings.TrimSpace(a.PostalCode) == "":
		return fmt.Errorf("%w: postal code is required", ErrInvalid)
	}

	country := strings.ToUpper(strings.TrimSpace(a.CountryCode))
	if len(country) != 2 {
		return fmt.Errorf("%w: country code must be ISO 3166-1 alpha-2", ErrInvalid)
	}
	if format, ok := postalFormats[country]; ok && !format.MatchString(strings.TrimSpace(a.PostalCode)) {
		return fmt.Errorf("%w: postal code %q is not valid for %s", ErrInvalid, a.PostalCode, country)
	}
	return nil
}

// Fingerprint returns a normalized key used to deduplicate addresses of
// authenticated owners.
func (a *Address) Fingerprint() string {
	parts := []string{a.Name, a.Line1, a.Line2, a.City, a.Region, a.PostalCode, a.CountryCode}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.Join(strings.Fields(p), " "))
	}
	return strings.Join(parts, "|")
}

// Resolver is the external address collaborator. ResolveOrCreate returns
// the id of a stored address matching addr, creating one when needed.
// ownerID is empty for guests, whose addresses are always created fresh.
type Resolver interface {
	ResolveOrCreate(ctx context.Context, addr Address, ownerID string, addrType Type) (string, error)
}
