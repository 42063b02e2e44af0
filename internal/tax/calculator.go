// Package tax computes the simplified monthly rental tax estimate.
//
// The computation is pure: it performs no I/O and holds no state, so Compute
// may be called from any number of goroutines.
package tax

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/stwalsh4118/rentaltax/internal/models"
)

// ErrInvalidInput is returned for a rent or category the calculator rejects.
var ErrInvalidInput = errors.New("invalid input")

// Money values carry two fractional digits.
const moneyPlaces = 2

var (
	// Deduction is the flat amount subtracted from a tax base when its
	// deduction flag is set.
	Deduction = decimal.NewFromInt(800)

	// MaxMonthlyRent is the exclusive upper bound accepted for a rent,
	// matching the NUMERIC(10,2) storage column.
	MaxMonthlyRent = decimal.NewFromInt(100_000_000)
)

// Rates is one row of the rate policy table.
type Rates struct {
	Property decimal.Decimal
	Income   decimal.Decimal
}

var (
	residentialRates    = Rates{Property: decimal.RequireFromString("0.04"), Income: decimal.RequireFromString("0.10")}
	residentialHalfRate = decimal.RequireFromString("0.02")
	nonResidentialRates = Rates{Property: decimal.RequireFromString("0.12"), Income: decimal.RequireFromString("0.20")}
)

// RatesFor returns the policy rates for a category. halfRate only affects
// Residential, where it halves the property rate from 4% to 2%.
func RatesFor(category models.HouseCategory, halfRate bool) (Rates, error) {
	switch category {
	case models.Residential:
		r := residentialRates
		if halfRate {
			r.Property = residentialHalfRate
		}
		return r, nil
	case models.NonResidential:
		return nonResidentialRates, nil
	default:
		return Rates{}, fmt.Errorf("%w: unrecognized house category %q", ErrInvalidInput, category)
	}
}

// Input holds the caller-supplied parameters of a calculation.
type Input struct {
	Category          string
	MonthlyRent       float64
	PropertyDeduction bool
	IncomeDeduction   bool
	PropertyHalfRate  bool
}

// Compute validates in and returns its tax breakdown.
//
// Each tax is base × rate rounded half away from zero to two places, and the
// total is the rounded sum of the two already-rounded taxes.
func Compute(in Input) (models.TaxQuote, error) {
	category, err := models.ParseHouseCategory(in.Category)
	if err != nil {
		return models.TaxQuote{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	rent, err := parseRent(in.MonthlyRent)
	if err != nil {
		return models.TaxQuote{}, err
	}

	rates, err := RatesFor(category, in.PropertyHalfRate)
	if err != nil {
		return models.TaxQuote{}, err
	}

	propertyBase := taxBase(rent, in.PropertyDeduction)
	incomeBase := taxBase(rent, in.IncomeDeduction)

	propertyTax := propertyBase.Mul(rates.Property).Round(moneyPlaces)
	incomeTax := incomeBase.Mul(rates.Income).Round(moneyPlaces)

	return models.TaxQuote{
		HouseCategory:     category,
		MonthlyRent:       rent,
		PropertyDeduction: in.PropertyDeduction,
		IncomeDeduction:   in.IncomeDeduction,
		PropertyHalfRate:  in.PropertyHalfRate && category == models.Residential,
		PropertyBase:      propertyBase,
		IncomeBase:        incomeBase,
		PropertyRate:      rates.Property,
		IncomeRate:        rates.Income,
		PropertyTax:       propertyTax,
		IncomeTax:         incomeTax,
		TotalTax:          propertyTax.Add(incomeTax).Round(moneyPlaces),
	}, nil
}

// parseRent rejects non-finite and out-of-range rents and rounds the rest to
// two places.
func parseRent(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Decimal{}, fmt.Errorf("%w: monthly rent must be a finite number", ErrInvalidInput)
	}
	if v <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: monthly rent must be greater than 0, got %v", ErrInvalidInput, v)
	}

	rent := decimal.NewFromFloat(v).Round(moneyPlaces)
	if !rent.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: monthly rent %v rounds to zero", ErrInvalidInput, v)
	}
	if rent.GreaterThanOrEqual(MaxMonthlyRent) {
		return decimal.Decimal{}, fmt.Errorf("%w: monthly rent must be less than %s", ErrInvalidInput, MaxMonthlyRent)
	}
	return rent, nil
}

// taxBase applies the flat deduction when requested, never going below zero.
func taxBase(rent decimal.Decimal, deduct bool) decimal.Decimal {
	if !deduct {
		return rent
	}
	return decimal.Max(decimal.Zero, rent.Sub(Deduction))
}
