package core

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{json.Number("1200000"), "1200000", true},
		{json.Number("12.345"), "12.35", true},
		{"1,200,000", "1200000", true},
		{" 2500.50 ", "2500.5", true},
		{float64(99.5), "99.5", true},
		{"0", "0", true},
		{json.Number("-1"), "", false},
		{"abc", "", false},
		{"", "", false},
		{true, "", false},
		{nil, "", false},
		{json.Number("999999999999999.99"), "999999999999999.99", true},
		{json.Number("1000000000000000"), "", false},
		{json.Number("1e30000000"), "", false},
		{"1e-30000000", "", false},
		{json.Number("0e30000000"), "0", true},
		{"12.5" + strings.Repeat("0", 40), "", false},
		{float64(1e300), "", false},
		{strings.Repeat("9", 100000), "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrInvalidAmount, "input %v", tc.in)
			continue
		}
		require.NoError(t, err, "input %v", tc.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "input %v: got %s want %s", tc.in, got, tc.want)
	}
}

func TestParseAmountHugeExponentReturnsQuickly(t *testing.T) {
	start := time.Now()
	_, err := ParseAmount(json.Number("1e2147483647"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Less(t, time.Since(start), time.Second)
}

func TestParseTaxYear(t *testing.T) {
	cases := []struct {
		in   any
		want int
		ok   bool
	}{
		{json.Number("2025"), 2025, true},
		{"2024", 2024, true},
		{float64(2026), 2026, true},
		{2023, 2023, true},
		{"1999", 0, false},
		{json.Number("2101"), 0, false},
		{float64(2025.5), 0, false},
		{"twenty", 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, err := ParseTaxYear(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrInvalidTaxYear, "input %v", tc.in)
			continue
		}
		require.NoError(t, err, "input %v", tc.in)
		assert.Equal(t, tc.want, got)
	}
}
