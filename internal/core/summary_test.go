package core

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIncomeSummaryComputesTotal(t *testing.T) {
	s, err := NewIncomeSummary(map[string]any{
		"userId":  "u1",
		"taxYear": json.Number("2025"),
		"amounts": map[string]any{
			"salary":   json.Number("1200000"),
			"rent":     "300,000",
			"dividend": "",
		},
	})
	require.NoError(t, err)
	assert.Len(t, s.Amounts, 2)
	assert.True(t, s.TotalIncome.Equal(decimal.NewFromInt(1500000)), "total %s", s.TotalIncome)
}

func TestNewIncomeSummaryRejectsUnknownCategory(t *testing.T) {
	_, err := NewIncomeSummary(map[string]any{
		"userId":  "u1",
		"taxYear": 2025,
		"amounts": map[string]any{"lottery": "5"},
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewIncomeSummary(map[string]any{
		"userId":  "u1",
		"taxYear": 2025,
		"amounts": []any{"5"},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSummarizeDetails(t *testing.T) {
	key := Key{UserID: "u1", TaxYear: 2025}
	details := []IncomeDetail{
		{ID: "a", UserID: "u1", TaxYear: 2025, Category: CategorySalary, Fields: map[string]any{
			"annualSalary": decimal.NewFromInt(2400000),
			"taxDeducted":  decimal.NewFromInt(100000),
		}},
		{ID: "b", UserID: "u1", TaxYear: 2025, Category: CategoryProfitOnSavings, Fields: map[string]any{
			"profitAmount": decimal.RequireFromString("45000.25"),
		}},
	}

	s, err := SummarizeDetails(key, details)
	require.NoError(t, err)
	assert.True(t, s.Amounts[CategorySalary].Equal(decimal.NewFromInt(2400000)))
	assert.True(t, s.TotalIncome.Equal(decimal.RequireFromString("2445000.25")))

	details[1].TaxYear = 2024
	_, err = SummarizeDetails(key, details)
	assert.Error(t, err)
}
