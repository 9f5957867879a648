package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valid() Address {
	return Address{
		Name:        "Jordan Doe",
		Line1:       "1 Main St",
		City:        "Springfield",
		Region:      "IL",
		PostalCode:  "62701",
		CountryCode: "US",
	}
}

func TestAddress_Validate_Success(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Address)
	}{
		{name: "us", mutate: func(a *Address) {}},
		{name: "us zip+4", mutate: func(a *Address) { a.PostalCode = "62701-1234" }},
		{name: "ca", mutate: func(a *Address) { a.CountryCode = "CA"; a.PostalCode = "K1A 0B1" }},
		{name: "gb", mutate: func(a *Address) { a.CountryCode = "GB"; a.PostalCode = "SW1A 1AA" }},
		{name: "jp without hyphen", mutate: func(a *Address) { a.CountryCode = "JP"; a.PostalCode = "1000001" }},
		{name: "nl", mutate: func(a *Address) { a.CountryCode = "NL"; a.PostalCode = "1012 AB" }},
		{name: "lowercase country", mutate: func(a *Address) { a.CountryCode = "us" }},
		{name: "unlisted country any code", mutate: func(a *Address) { a.CountryCode = "CH"; a.PostalCode = "8000" }},
		{name: "no region", mutate: func(a *Address) { a.Region = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid()
			tt.mutate(&a)
			assert.NoError(t, a.Validate())
		})
	}
}

func TestAddress_Validate_Failure(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Address)
	}{
		{name: "missing name", mutate: func(a *Address) { a.Name = "" }},
		{name: "whitespace name", mutate: func(a *Address) { a.Name = "   " }},
		{name: "missing line1", mutate: func(a *Address) { a.Line1 = "" }},
		{name: "missing city", mutate: func(a *Address) { a.City = "" }},
		{name: "missing postal code", mutate: func(a *Address) { a.PostalCode = "" }},
		{name: "missing country", mutate: func(a *Address) { a.CountryCode = "" }},
		{name: "three letter country", mutate: func(a *Address) { a.CountryCode = "USA" }},
		{name: "bad us zip", mutate: func(a *Address) { a.PostalCode = "ABCDE" }},
		{name: "short us zip", mutate: func(a *Address) { a.PostalCode = "1234" }},
		{name: "bad de plz", mutate: func(a *Address) { a.CountryCode = "DE"; a.PostalCode = "123" }},
		{name: "bad gb postcode", mutate: func(a *Address) { a.CountryCode = "GB"; a.PostalCode = "12345" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid()
			tt.mutate(&a)
			err := a.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestAddress_Fingerprint_NormalizesCaseAndSpacing(t *testing.T) {
	a := valid()

	b := valid()
	b.Name = "  JORDAN   DOE "
	b.Line1 = "1  Main   St"

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	c := valid()
	c.Line1 = "2 Main St"
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
