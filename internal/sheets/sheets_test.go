package sheets

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxdesk/internal/core"
)

func TestRowFollowsHeader(t *testing.T) {
	s := core.IncomeSummary{
		UserID:  "u1",
		TaxYear: 2025,
		Amounts: map[core.Category]decimal.Decimal{
			core.CategorySalary: decimal.NewFromInt(1200000),
			core.CategoryRent:   decimal.RequireFromString("300000.5"),
		},
		TotalIncome: decimal.RequireFromString("1500000.5"),
		Revision:    3,
		UpdatedAt:   time.Date(2025, 8, 1, 10, 30, 0, 0, time.UTC),
	}

	header := Header()
	row := Row(s)
	require.Len(t, row, len(header))

	col := func(name string) any {
		for i, h := range header {
			if h == name {
				return row[i]
			}
		}
		t.Fatalf("no column %q", name)
		return nil
	}
	assert.Equal(t, "u1", col("User ID"))
	assert.Equal(t, "1200000.00", col("salary"))
	assert.Equal(t, "300000.50", col("rent"))
	assert.Equal(t, "0.00", col("dividend"))
	assert.Equal(t, "1500000.50", col("Total Income"))
	assert.EqualValues(t, 3, col("Revision"))
	assert.Equal(t, "2025-08-01 10:30:00", col("Updated At"))
}
