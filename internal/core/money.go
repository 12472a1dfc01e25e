// Package core provides amount and tax year parsing.
//
// This file converts the loosely typed values found in decoded JSON bodies
// (json.Number, string, float64) into decimal amounts and integer tax years.
package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// AmountPlaces is the number of decimal places kept for rupee amounts (paisa).
	AmountPlaces = 2

	MinTaxYear = 2000
	MaxTaxYear = 2100

	// MaxAmountDigits caps the integer part of an amount (below 1e15).
	MaxAmountDigits = 15

	maxAmountText  = 64
	maxAmountScale = 30
	maxAmountBits  = 128
)

// ParseAmount converts a decoded JSON value to a non-negative rupee amount.
//
// Strings may carry thousands separators and surrounding spaces:
//
//	ParseAmount("1,200,000")        -> 1200000
//	ParseAmount(json.Number("12.345")) -> 12.35 (half-up on the third place)
//	ParseAmount("-5")               -> error
//	ParseAmount("1e30")             -> error (at most MaxAmountDigits integer digits)
func ParseAmount(v any) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch val := v.(type) {
	case decimal.Decimal:
		d = val
	case json.Number:
		d, err = parseAmountText(val.String())
	case string:
		s := strings.TrimSpace(val)
		s = strings.ReplaceAll(s, ",", "")
		s = strings.ReplaceAll(s, " ", "")
		if s == "" {
			return decimal.Zero, ErrInvalidAmount
		}
		d, err = parseAmountText(s)
	case float64:
		d = decimal.NewFromFloat(val)
	case int:
		d = decimal.NewFromInt(int64(val))
	case int64:
		d = decimal.NewFromInt(val)
	default:
		return decimal.Zero, ErrInvalidAmount
	}
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}
	if err := checkAmountSize(d); err != nil {
		return decimal.Zero, err
	}
	return d.Round(AmountPlaces), nil
}

func parseAmountText(s string) (decimal.Decimal, error) {
	if len(s) > maxAmountText {
		return decimal.Zero, ErrInvalidAmount
	}
	return decimal.NewFromString(s)
}

// checkAmountSize rejects values whose coefficient or exponent would make
// rounding expand them into an enormous integer.
func checkAmountSize(d decimal.Decimal) error {
	exp := int(d.Exponent())
	if exp < -maxAmountScale || d.Coefficient().BitLen() > maxAmountBits {
		return fmt.Errorf("%w: too many digits", ErrInvalidAmount)
	}
	if d.NumDigits()+exp > MaxAmountDigits {
		return fmt.Errorf("%w: must be below 1e%d", ErrInvalidAmount, MaxAmountDigits)
	}
	return nil
}

// ParseTaxYear converts a decoded JSON value to a tax year within
// [MinTaxYear, MaxTaxYear]. Numeric strings are accepted.
func ParseTaxYear(v any) (int, error) {
	var s string
	switch val := v.(type) {
	case json.Number:
		s = val.String()
	case string:
		s = strings.TrimSpace(val)
	case float64:
		if val != float64(int(val)) {
			return 0, ErrInvalidTaxYear
		}
		s = strconv.Itoa(int(val))
	case int:
		s = strconv.Itoa(val)
	default:
		return 0, ErrInvalidTaxYear
	}
	year, err := strconv.Atoi(s)
	if err != nil {
		return 0, ErrInvalidTaxYear
	}
	if year < MinTaxYear || year > MaxTaxYear {
		return 0, fmt.Errorf("%w: must be between %d and %d", ErrInvalidTaxYear, MinTaxYear, MaxTaxYear)
	}
	return year, nil
}

// isBlank reports whether a decoded JSON value should count as absent.
func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}
