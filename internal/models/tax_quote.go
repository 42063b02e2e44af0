package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// HouseCategory selects the row of the rate policy table.
type HouseCategory string

const (
	// Residential is housing let for living.
	Residential HouseCategory = "residential"
	// NonResidential covers shops, offices and other commercial lets.
	NonResidential HouseCategory = "non_residential"
)

// ParseHouseCategory maps the wire value to a HouseCategory.
// Surrounding whitespace and letter case are ignored.
func ParseHouseCategory(s string) (HouseCategory, error) {
	c := HouseCategory(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unrecognized house category %q", s)
	}
	return c, nil
}

// Valid reports whether c is one of the recognized categories.
func (c HouseCategory) Valid() bool {
	return c == Residential || c == NonResidential
}

// String returns the wire value.
func (c HouseCategory) String() string {
	return string(c)
}

// TaxQuote is the computed monthly tax breakdown for a single rent amount.
// All amounts are in currency units; taxes carry two fractional digits.
type TaxQuote struct {
	HouseCategory     HouseCategory   `json:"houseCategory"`
	MonthlyRent       decimal.Decimal `json:"monthlyRent"`
	PropertyBase      decimal.Decimal `json:"propertyBase"`
	IncomeBase        decimal.Decimal `json:"incomeBase"`
	PropertyRate      decimal.Decimal `json:"propertyRate"`
	IncomeRate        decimal.Decimal `json:"incomeRate"`
	PropertyTax       decimal.Decimal `json:"propertyTax"`
	IncomeTax         decimal.Decimal `json:"incomeTax"`
	TotalTax          decimal.Decimal `json:"totalTax"`
	PropertyDeduction bool            `json:"propertyDeduction"`
	IncomeDeduction   bool            `json:"incomeDeduction"`
	PropertyHalfRate  bool            `json:"propertyHalfRate"`
}
